package egg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateValueRequired(t *testing.T) {
	v := Variable{EnvVariable: "WORLD_NAME", Rules: "required|string"}

	assert.Error(t, ValidateValue(v, ""))
	assert.NoError(t, ValidateValue(v, "world"))
}

func TestValidateValueNullable(t *testing.T) {
	v := Variable{EnvVariable: "PASSWORD", Rules: "nullable|string"}

	assert.NoError(t, ValidateValue(v, ""))
	assert.NoError(t, ValidateValue(v, "hunter2"))
}

func TestValidateValueNumeric(t *testing.T) {
	v := Variable{EnvVariable: "RAM", Rules: "required|numeric|min:128"}

	assert.Error(t, ValidateValue(v, "abc"))
	assert.Error(t, ValidateValue(v, "127"))
	assert.NoError(t, ValidateValue(v, "128"))
	assert.NoError(t, ValidateValue(v, "4096"))
}

func TestValidateValueBetween(t *testing.T) {
	v := Variable{EnvVariable: "MAX_PLAYERS", Rules: "required|numeric|between:1,255"}

	assert.Error(t, ValidateValue(v, "0"))
	assert.NoError(t, ValidateValue(v, "1"))
	assert.NoError(t, ValidateValue(v, "255"))
	assert.Error(t, ValidateValue(v, "256"))
}

func TestValidateValueIn(t *testing.T) {
	v := Variable{EnvVariable: "WORLD_SIZE", Rules: "required|in:1,2,3"}

	assert.NoError(t, ValidateValue(v, "2"))
	assert.Error(t, ValidateValue(v, "4"))
	assert.Error(t, ValidateValue(v, "small"))
}

func TestValidateValueMaxOnString(t *testing.T) {
	// Without the numeric rule, min/max compare string length.
	v := Variable{EnvVariable: "NAME", Rules: "required|string|max:5"}

	assert.NoError(t, ValidateValue(v, "abc"))
	assert.Error(t, ValidateValue(v, "abcdef"))
}

func TestValidateValueUnknownTokenIgnored(t *testing.T) {
	v := Variable{EnvVariable: "X", Rules: "required|alpha_dash"}

	assert.NoError(t, ValidateValue(v, "whatever"))
}
