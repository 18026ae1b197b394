package transport

import (
	"fmt"
	"net/http"
	"testing"

	"storefront/internal/domain"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProperty_InvalidRegistrationDataIsRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("registration with invalid data returns validation errors", prop.ForAll(
		func(invalidCase int) bool {
			f := newAPIFixture(t)

			var reqBody RegisterRequest
			switch invalidCase % 4 {
			case 0:
				reqBody = RegisterRequest{Password: "ValidPass123", FirstName: "John", LastName: "Doe"}
			case 1:
				reqBody = RegisterRequest{Email: "not-an-email", Password: "ValidPass123", FirstName: "John", LastName: "Doe"}
			case 2:
				reqBody = RegisterRequest{Email: "test@example.com", Password: "short", FirstName: "John", LastName: "Doe"}
			case 3:
				reqBody = RegisterRequest{Email: "test@example.com", Password: "ValidPass123"}
			}

			w := f.do(call{method: http.MethodPost, path: "/api/users/register", body: reqBody})
			if w.Code != http.StatusBadRequest {
				return false
			}
			return len(decodeJSON[errorBody](t, w).Error.Details.ValidationErrors) > 0
		},
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_LoginIssuesTokenForAccount(t *testing.T) {
	// bcrypt dominates each run.
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("login returns a token naming the signed-in account", prop.ForAll(
		func(n int) bool {
			f := newAPIFixture(t)
			email := fmt.Sprintf("user%d@example.com", n)

			w := f.do(call{method: http.MethodPost, path: "/api/users/register", body: RegisterRequest{
				Email: email, Password: "ValidPass123", FirstName: "John", LastName: "Doe",
			}})
			if w.Code != http.StatusCreated {
				return false
			}
			profile := decodeJSON[UserProfile](t, w)

			w = f.do(call{method: http.MethodPost, path: "/api/users/login", body: LoginRequest{Email: email, Password: "ValidPass123"}})
			if w.Code != http.StatusOK {
				return false
			}
			response := decodeJSON[LoginResponse](t, w)

			claims, err := f.users.ValidateToken(response.AccessToken)
			if err != nil {
				return false
			}
			return claims.UserID.String() == profile.ID &&
				response.User.Email == email &&
				response.User.Role == domain.RoleUser &&
				!response.MergePending
		},
		gen.IntRange(1, 10000),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestUserHandler_LoginMergesGuestCart(t *testing.T) {
	f := newAPIFixture(t)
	margherita := f.catalog.add("Margherita", "pizza", "10.00", 10)
	lemonade := f.catalog.add("Lemonade", "drinks", "3.00", 10)

	token, user := f.signUp("buyer@example.com")
	f.addToCart(token, "", margherita, 1)
	f.addToCart("", "sess-1", margherita, 2)
	f.addToCart("", "sess-1", lemonade, 1)

	w := f.do(call{method: http.MethodPost, path: "/api/users/login", session: "sess-1", body: LoginRequest{
		Email: "buyer@example.com", Password: "password123",
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	response := decodeJSON[LoginResponse](t, w)
	require.NotNil(t, response.CartMerge)
	assert.False(t, response.MergePending)
	assert.Equal(t, user.ID, response.CartMerge.AccountID)
	assert.Len(t, response.CartMerge.Lines, 2)
	assert.True(t, response.CartMerge.GuestCleared)

	lines, err := f.accounts.Lines(t.Context(), user.ID.String())
	require.NoError(t, err)
	quantities := map[string]int{}
	for _, line := range lines {
		quantities[line.ProductID.String()] = line.Quantity
	}
	assert.Equal(t, map[string]int{margherita.ID.String(): 3, lemonade.ID.String(): 1}, quantities)

	guestLines, err := f.guest.Lines(t.Context(), "sess-1")
	require.NoError(t, err)
	assert.Empty(t, guestLines)
}

func TestUserHandler_RegisterAndProfile(t *testing.T) {
	f := newAPIFixture(t)

	body := RegisterRequest{Email: adminEmail, Password: "ValidPass123", FirstName: "Ada", LastName: "Owner"}
	w := f.do(call{method: http.MethodPost, path: "/api/users/register", body: body})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, domain.RoleAdmin, decodeJSON[UserProfile](t, w).Role)

	w = f.do(call{method: http.MethodPost, path: "/api/users/register", body: body})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(call{method: http.MethodPost, path: "/api/users/login", body: LoginRequest{Email: adminEmail, Password: "wrong-password"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(call{method: http.MethodGet, path: "/api/users/profile"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, user := f.signUp("buyer@example.com")
	w = f.do(call{method: http.MethodGet, path: "/api/users/profile", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	profile := decodeJSON[UserProfile](t, w)
	assert.Equal(t, user.ID.String(), profile.ID)
	assert.Equal(t, domain.RoleUser, profile.Role)
}

func TestUserHandler_SecondLoginFromSameSessionMergesAgain(t *testing.T) {
	f := newAPIFixture(t)
	margherita := f.catalog.add("Margherita", "pizza", "10.00", 10)
	_, user := f.signUp("buyer@example.com")
	login := call{method: http.MethodPost, path: "/api/users/login", session: "sess-1", body: LoginRequest{
		Email: "buyer@example.com", Password: "password123",
	}}

	for round := 1; round <= 2; round++ {
		f.addToCart("", "sess-1", margherita, 1)

		w := f.do(login)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		response := decodeJSON[LoginResponse](t, w)
		require.NotNil(t, response.CartMerge)
		assert.False(t, response.CartMerge.AlreadyApplied, "round %d", round)

		lines, err := f.accounts.Lines(t.Context(), user.ID.String())
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, round, lines[0].Quantity)
	}
}
