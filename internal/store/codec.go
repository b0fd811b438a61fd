package store

import (
	"time"

	"github.com/chirino/memory-service/internal/model"
	"github.com/chirino/memory-service/internal/stableregion"
)

func encodeMemory(m *model.Memory) []byte {
	e := stableregion.NewEncoder()
	e.PutString(m.ID)
	e.PutBytes(m.Owner[:])
	e.PutString(m.Content)
	e.PutFloat32Slice(m.Embedding)
	e.PutStringMap(m.Metadata)
	e.PutStringSlice(m.Tags)
	e.PutInt64(m.CreatedAt.UnixNano())
	e.PutInt64(m.UpdatedAt.UnixNano())
	return e.Bytes()
}

func decodeMemory(b []byte) (*model.Memory, error) {
	d := stableregion.NewDecoder(b)
	m := &model.Memory{}
	m.ID = d.GetString()
	owner := d.GetBytes()
	copy(m.Owner[:], owner)
	m.Content = d.GetString()
	m.Embedding = d.GetFloat32Slice()
	m.Metadata = d.GetStringMap()
	m.Tags = d.GetStringSlice()
	m.CreatedAt = time.Unix(0, d.GetInt64()).UTC()
	m.UpdatedAt = time.Unix(0, d.GetInt64()).UTC()
	if d.Err() != nil {
		return nil, d.Err()
	}
	return m, nil
}

func encodeConversation(c *model.Conversation) []byte {
	e := stableregion.NewEncoder()
	e.PutString(c.ID)
	e.PutBytes(c.Owner[:])
	e.PutString(c.Title)
	e.PutString(c.Content)
	e.PutString(c.Source)
	e.PutStringMap(c.Metadata)
	e.PutInt64(int64(c.WordCount))
	e.PutInt64(c.CreatedAt.UnixNano())
	e.PutInt64(c.UpdatedAt.UnixNano())
	return e.Bytes()
}

func decodeConversation(b []byte) (*model.Conversation, error) {
	d := stableregion.NewDecoder(b)
	c := &model.Conversation{}
	c.ID = d.GetString()
	owner := d.GetBytes()
	copy(c.Owner[:], owner)
	c.Title = d.GetString()
	c.Content = d.GetString()
	c.Source = d.GetString()
	c.Metadata = d.GetStringMap()
	c.WordCount = int(d.GetInt64())
	c.CreatedAt = time.Unix(0, d.GetInt64()).UTC()
	c.UpdatedAt = time.Unix(0, d.GetInt64()).UTC()
	if d.Err() != nil {
		return nil, d.Err()
	}
	return c, nil
}

func encodeUserConfig(c *model.UserConfig) []byte {
	e := stableregion.NewEncoder()
	e.PutBytes(c.Owner[:])
	e.PutString(c.OpenAIKey)
	e.PutString(c.OpenRouterKey)
	e.PutString(string(c.Provider))
	e.PutString(c.EmbeddingModel)
	e.PutInt64(c.CreatedAt.UnixNano())
	e.PutInt64(c.UpdatedAt.UnixNano())
	return e.Bytes()
}

func decodeUserConfig(b []byte) (*model.UserConfig, error) {
	d := stableregion.NewDecoder(b)
	c := &model.UserConfig{}
	owner := d.GetBytes()
	copy(c.Owner[:], owner)
	c.OpenAIKey = d.GetString()
	c.OpenRouterKey = d.GetString()
	c.Provider = model.Provider(d.GetString())
	c.EmbeddingModel = d.GetString()
	c.CreatedAt = time.Unix(0, d.GetInt64()).UTC()
	c.UpdatedAt = time.Unix(0, d.GetInt64()).UTC()
	if d.Err() != nil {
		return nil, d.Err()
	}
	return c, nil
}

func encodeAccessToken(t *model.AccessToken) []byte {
	e := stableregion.NewEncoder()
	e.PutString(t.Token)
	e.PutBytes(t.Owner[:])
	e.PutString(t.Label)
	perms := make(map[string]bool, len(t.Permissions))
	for p, ok := range t.Permissions {
		if ok {
			perms[string(p)] = true
		}
	}
	e.PutBoolSet(perms)
	e.PutInt64(t.ExpiresAt.UnixNano())
	e.PutInt64(t.CreatedAt.UnixNano())
	if t.LastUsedAt != nil {
		e.PutBool(true)
		e.PutInt64(t.LastUsedAt.UnixNano())
	} else {
		e.PutBool(false)
	}
	return e.Bytes()
}

func decodeAccessToken(b []byte) (*model.AccessToken, error) {
	d := stableregion.NewDecoder(b)
	t := &model.AccessToken{}
	t.Token = d.GetString()
	owner := d.GetBytes()
	copy(t.Owner[:], owner)
	t.Label = d.GetString()
	permSet := d.GetBoolSet()
	t.Permissions = make(map[model.Permission]bool, len(permSet))
	for p := range permSet {
		t.Permissions[model.Permission(p)] = true
	}
	t.ExpiresAt = time.Unix(0, d.GetInt64()).UTC()
	t.CreatedAt = time.Unix(0, d.GetInt64()).UTC()
	if d.GetBool() {
		ts := time.Unix(0, d.GetInt64()).UTC()
		t.LastUsedAt = &ts
	}
	if d.Err() != nil {
		return nil, d.Err()
	}
	return t, nil
}
