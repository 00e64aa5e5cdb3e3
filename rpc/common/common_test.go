package common

import (
	"errors"
	"testing"

	"github.com/ValentinKolb/dDoc/lib/document"
	"github.com/ValentinKolb/dDoc/lib/query"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/goccy/go-json"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() ServerConfig {
	return ServerConfig{
		Engine:        EngineMaple,
		DBName:        "crm",
		SchemaVersion: 1,
		Collections:   []store.CollectionSpec{{Name: "leads"}},
		Endpoint:      "localhost:8080",
		LogLevel:      "info",
	}
}

func TestServerConfigValidate(t *testing.T) {
	c := validConfig()
	require.NoError(t, c.Validate())
	assert.Contains(t, c.String(), "leads")

	for name, mutate := range map[string]func(c *ServerConfig){
		"unknown engine":      func(c *ServerConfig) { c.Engine = "mongo" },
		"bolt without dir":    func(c *ServerConfig) { c.Engine = EngineBolt },
		"sqlite without dir":  func(c *ServerConfig) { c.Engine = EngineSQLite },
		"bad log level":       func(c *ServerConfig) { c.LogLevel = "loud" },
		"no endpoint":         func(c *ServerConfig) { c.Endpoint = "" },
		"version zero":        func(c *ServerConfig) { c.SchemaVersion = 0 },
		"reserved collection": func(c *ServerConfig) { c.Collections = []store.CollectionSpec{{Name: "__meta"}} },
	} {
		c := validConfig()
		mutate(&c)
		assert.Error(t, c.Validate(), name)
	}

	c = validConfig()
	c.Engine, c.DataDir = EngineSQLite, t.TempDir()
	assert.NoError(t, c.Validate())
}

func TestErrorTransport(t *testing.T) {
	cause := errors.New("disk on fire")
	msg := NewErrorResponse(store.WrapError(store.RetCTransactionError, cause, "commit failed"))
	assert.Equal(t, MsgTError, msg.MsgType)
	assert.Equal(t, uint64(store.RetCTransactionError), msg.Code)

	err := msg.Error()
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrTransaction)
	assert.Contains(t, err.Error(), "disk on fire")

	// foreign errors are reported as internal errors
	msg = NewCountResponse(0, cause)
	assert.ErrorIs(t, msg.Error(), store.ErrInternal)

	// an error message without code is still an error
	msg = &Message{MsgType: MsgTError}
	assert.ErrorIs(t, msg.Error(), store.ErrInternal)

	assert.NoError(t, NewCountResponse(3, nil).Error())
}

func TestPayloadAccessors(t *testing.T) {
	msg := &Message{MsgType: MsgTFind}
	f, err := msg.ParseFilter()
	require.NoError(t, err)
	assert.Nil(t, f, "absent filter matches everything")

	msg = NewFindRequest(query.Filter{query.Eq("status", document.String("won"))})
	f, err = msg.ParseFilter()
	require.NoError(t, err)
	assert.True(t, f.Match(document.Document{"status": document.String("won")}))

	msg.Filter = document.Encode(document.Document{"conditions": document.Array{document.Document{
		"kind":    document.String("regex"),
		"field":   document.String("name"),
		"pattern": document.String("("),
	}}})
	_, err = msg.ParseFilter()
	assert.ErrorIs(t, err, store.ErrInvalidOperation)

	// the dynamic shape is not accepted on the wire
	msg.Filter = document.Encode(document.Document{"name": document.String("Alice")})
	_, err = msg.ParseFilter()
	assert.ErrorIs(t, err, store.ErrInvalidOperation)

	msg = &Message{Doc: []byte{0xff}}
	_, err = msg.Document()
	assert.ErrorIs(t, err, store.ErrInvalidOperation)

	msg = NewUpdateOneRequest(query.ByID("a"), store.Update{Set: document.Document{"x": document.Int(1)}})
	u, err := msg.ParseUpdate()
	require.NoError(t, err)
	assert.Equal(t, document.Document{"x": document.Int(1)}, u.Set)
}

func TestMessageTypeJSON(t *testing.T) {
	for typ := MsgTUnknown; typ <= MsgTListCollections; typ++ {
		b, err := json.Marshal(typ)
		require.NoError(t, err)

		var back MessageType
		require.NoError(t, json.Unmarshal(b, &back))
		assert.Equal(t, typ, back)
	}

	var typ MessageType
	assert.Error(t, json.Unmarshal([]byte(`"setKey"`), &typ))
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := ParseLogLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, logger.WARNING, lvl)

	_, err = ParseLogLevel("verbose")
	assert.Error(t, err)

	require.NoError(t, InitLoggers("error"))
	require.NoError(t, InitLoggers("info"))
	assert.Error(t, InitLoggers("verbose"))
}
