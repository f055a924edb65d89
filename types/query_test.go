package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoginParamsValidate(t *testing.T) {
	params := &LoginParams{Username: "admin", Password: "admin123"}
	assert.Nil(t, params.Validate())

	params = &LoginParams{Username: "admin"}
	errs := params.Validate()
	assert.Contains(t, errs, "Password")
}

func TestCreateUserParamsValidate(t *testing.T) {
	params := &CreateUserParams{
		Username:   "analyst",
		Password:   "analyst123",
		Role:       "Employee",
		Department: "Finance",
	}
	assert.Nil(t, params.Validate())

	params.Role = "Wizard"
	errs := params.Validate()
	assert.Contains(t, errs, "Role")

	params.Role = "Employee"
	params.Password = "short"
	errs = params.Validate()
	assert.Contains(t, errs, "Password")
}

func TestQueryParamsValidate(t *testing.T) {
	params := &QueryParams{}
	assert.Contains(t, params.Validate(), "Prompt")

	params.Prompt = "what is the vacation policy"
	assert.Nil(t, params.Validate())
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("Manager")
	assert.NoError(t, err)
	assert.Equal(t, RoleManager, role)

	_, err = ParseRole("manager")
	assert.Error(t, err)

	roles, err := ParseRoles([]string{"Executive", "Employee"})
	assert.NoError(t, err)
	assert.Equal(t, []Role{RoleExecutive, RoleEmployee}, roles)

	_, err = ParseRoles([]string{"Executive", "nope"})
	assert.Error(t, err)
}
