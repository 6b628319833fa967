package tests

import (
	"errors"
	"testing"
)

func TestSignupAndLogin(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("abc")
	if err != nil {
		t.Fatal(err)
	}

	var info map[string]interface{}
	if err := user.Get("/user/info").Do(&info); err != nil {
		t.Fatal(err)
	}
	if info["username"] != "abc" || info["email"] != "abc@mail.com" || info["is_admin"] != false {
		t.Fatalf("user info wrong: %v", info)
	}

	c := env.newClient()
	if _, err := c.signup("other", "abc@mail.com", "password123"); err == nil {
		t.Fatal("duplicate email should be rejected")
	}

	if err := c.login(loginInfo{Email: "abc@mail.com", Password: "wrong_password"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatal("login with wrong password should fail")
	}
}

func TestUserListRequiresAdmin(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("abc")
	if err != nil {
		t.Fatal(err)
	}

	var users []map[string]interface{}
	if err := user.Get("/user/list").Do(&users); err == nil {
		t.Fatal("non admins cannot list users")
	}

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	if err := admin.Get("/user/list").Do(&users); err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Fatalf("expected admin and user, got %d users", len(users))
	}
}
