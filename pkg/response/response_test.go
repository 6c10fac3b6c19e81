package response

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuccessWithPagination(t *testing.T) {
	r := SuccessWithPagination(200, []int{1, 2}, 2, 10, 21)
	assert.Equal(t, "success", r.Status)
	if assert.NotNil(t, r.Meta) {
		assert.Equal(t, 3, r.Meta.TotalPages)
		assert.Equal(t, 2, r.Meta.Page)
	}

	empty := SuccessWithPagination(200, []int{}, 1, 20, 0)
	assert.Equal(t, 0, empty.Meta.TotalPages)
}

func TestValidationFailed(t *testing.T) {
	r := ValidationFailed(422, map[string]string{"email": "is required"})
	assert.Equal(t, "error", r.Status)
	assert.Equal(t, "The given data was invalid.", r.Error)
	assert.Equal(t, "is required", r.Errors["email"])
}
