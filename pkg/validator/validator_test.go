package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Confirm  string `json:"confirmPassword" validate:"eqfield=Password"`
	Role     string `json:"role" validate:"omitempty,oneof=admin teacher student parent"`
	Internal string `json:"-"`
	NoTag    string `validate:"omitempty,alphanum"`
}

func validSignup() signup {
	return signup{
		Username: "amina",
		Email:    "amina@school.test",
		Password: "secret1",
		Confirm:  "secret1",
		Role:     "teacher",
	}
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	return valErr.Fields()
}

func TestValidate_Success(t *testing.T) {
	assert.NoError(t, Validate(validSignup()))
}

func TestValidate_UsesJSONFieldNames(t *testing.T) {
	s := validSignup()
	s.Username = ""
	s.Email = "not-an-email"

	fields := fieldsOf(t, Validate(s))
	assert.Equal(t, "is required", fields["username"])
	assert.Equal(t, "must be a valid email address", fields["email"])
}

func TestValidate_MinLength(t *testing.T) {
	s := validSignup()
	s.Password = "abc"
	s.Confirm = "abc"

	fields := fieldsOf(t, Validate(s))
	assert.Equal(t, "must be at least 6 characters", fields["password"])
}

func TestValidate_EqField(t *testing.T) {
	s := validSignup()
	s.Confirm = "different"

	fields := fieldsOf(t, Validate(s))
	assert.Equal(t, "must match Password", fields["confirmPassword"])
}

func TestValidate_OneOf(t *testing.T) {
	s := validSignup()
	s.Role = "principal"

	fields := fieldsOf(t, Validate(s))
	assert.Equal(t, "must be one of: admin teacher student parent", fields["role"])
}

func TestValidate_FallsBackToStructFieldName(t *testing.T) {
	s := validSignup()
	s.NoTag = "not alnum!"

	fields := fieldsOf(t, Validate(s))
	assert.Equal(t, "must contain only letters and digits", fields["NoTag"])
}

func TestValidationError_ErrorString(t *testing.T) {
	s := validSignup()
	s.Email = ""

	err := Validate(s)
	require.Error(t, err)
	assert.Equal(t, "field 'email' is required", err.Error())
}

func TestDecodeAndValidate_Success(t *testing.T) {
	body := `{"username":"amina","email":"amina@school.test","password":"secret1","confirmPassword":"secret1"}`
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(body))

	var dst signup
	require.NoError(t, DecodeAndValidate(req, &dst))
	assert.Equal(t, "amina", dst.Username)
}

func TestDecodeAndValidate_MalformedJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{"username":`))

	var dst signup
	err := DecodeAndValidate(req, &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}

func TestDecodeAndValidate_ValidationFailure(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{"username":"am"}`))

	var dst signup
	err := DecodeAndValidate(req, &dst)
	fields := fieldsOf(t, err)
	assert.Contains(t, fields, "username")
	assert.Contains(t, fields, "email")
}

func TestDecodeAndValidate_BodyTooLarge(t *testing.T) {
	big := `{"username":"` + strings.Repeat("a", maxBodyBytes+10) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(big))

	var dst signup
	err := DecodeAndValidate(req, &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}
