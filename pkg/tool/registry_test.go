package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoDefinition(name string) Definition {
	return Definition{
		Name:        name,
		Description: "Echoes its input",
		Parameters: []Parameter{
			{Name: "message", Type: "string", Description: "Text to echo", Required: true},
			{Name: "repeat", Type: "integer", Description: "Repeat count"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"message": args["message"]}, nil
		},
	}
}

func TestRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoDefinition("echo")))

	def, err := r.Resolve("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", def.Name)
	assert.True(t, r.Has("echo"))
	assert.Equal(t, 1, r.Count())
}

func TestResolveUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Resolve("missing")
	require.Error(t, err)

	var notFound *NotFoundError
	assert.True(t, errors.As(err, &notFound))
	assert.Equal(t, "missing", notFound.Name)
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoDefinition("echo")))
	assert.Error(t, r.Register(echoDefinition("echo")))
}

func TestRegisterInvalidDefinition(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
	}{
		{"empty name", Definition{Description: "d", Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) { return nil, nil }}},
		{"empty description", Definition{Name: "t", Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) { return nil, nil }}},
		{"nil handler", Definition{Name: "t", Description: "d"}},
		{"bad parameter type", Definition{
			Name:        "t",
			Description: "d",
			Parameters:  []Parameter{{Name: "p", Type: "decimal"}},
			Handler:     func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) { return nil, nil },
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			assert.Error(t, r.Register(tt.def))
		})
	}
}

func TestValidateArguments(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoDefinition("echo")))

	tests := []struct {
		name    string
		args    map[string]interface{}
		wantErr bool
	}{
		{"valid", map[string]interface{}{"message": "hi"}, false},
		{"valid with optional", map[string]interface{}{"message": "hi", "repeat": 3}, false},
		{"missing required", map[string]interface{}{"repeat": 3}, true},
		{"wrong type", map[string]interface{}{"message": 42}, true},
		{"unknown field", map[string]interface{}{"message": "hi", "loud": true}, true},
		{"nil args", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate("echo", tt.args)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateUnknownTool(t *testing.T) {
	r := NewRegistry()

	err := r.Validate("missing", map[string]interface{}{})
	var notFound *NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestSchemas(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoDefinition("echo")))
	require.NoError(t, r.Register(echoDefinition("echo2")))

	defs := r.Schemas()
	require.Len(t, defs, 2)
	for _, def := range defs {
		assert.NotEmpty(t, def.Name)
		assert.NotEmpty(t, def.Description)
		assert.Nil(t, def.Handler, "schemas must not expose handlers")
	}
}

func TestSchema(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoDefinition("echo")))

	def, err := r.Schema("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", def.Name)
	assert.NotEmpty(t, def.Parameters)
	assert.Nil(t, def.Handler, "schema must not expose the handler")

	_, err = r.Schema("missing")
	var notFound *NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestListNames(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoDefinition("echo")))

	assert.ElementsMatch(t, []string{"echo"}, r.List())
}
