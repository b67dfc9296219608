package service

import (
	"engz_backend/internal/model"
	"engz_backend/internal/util"
	"errors"
	"testing"
)

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	svc := NewAuthService(env.Users, env.Cfg)

	user, err := svc.Register("Mina", " Mina@Example.com ", "correct horse")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "mina@example.com" || user.Role != model.Learner || user.Entitled {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.Password == "correct horse" {
		t.Fatalf("password stored in clear text")
	}

	if _, err := svc.Register("Other", "mina@example.com", "x"); !errors.Is(err, util.ErrEmailRegistered) {
		t.Fatalf("expected duplicate email error, got %v", err)
	}

	res, err := svc.Login("MINA@example.com", "correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := util.ParseJWT(res.Token, env.Cfg.JWT.Secret)
	if err != nil || claims.UserID != user.ID {
		t.Fatalf("token: %v %+v", err, claims)
	}

	if _, err := svc.Login("mina@example.com", "wrong"); !errors.Is(err, util.ErrBadCredentials) {
		t.Fatalf("expected bad credentials, got %v", err)
	}
	if _, err := svc.Login("nobody@example.com", "x"); !errors.Is(err, util.ErrBadCredentials) {
		t.Fatalf("expected bad credentials, got %v", err)
	}
}

func TestSetEntitlement(t *testing.T) {
	env := newTestEnv(t)
	svc := NewAuthService(env.Users, env.Cfg)
	user, err := svc.Register("Ken", "ken@example.com", "pw")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := svc.SetEntitlement(user.ID, true); err != nil {
		t.Fatalf("entitle: %v", err)
	}
	// 重复设置同样的值不报错
	if err := svc.SetEntitlement(user.ID, true); err != nil {
		t.Fatalf("entitle again: %v", err)
	}
	ok, err := svc.IsEntitled(user.ID)
	if err != nil || !ok {
		t.Fatalf("entitled: %v %v", ok, err)
	}
	if err := svc.SetEntitlement(9999, true); !errors.Is(err, util.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	ok, err = svc.IsEntitled(9999)
	if err != nil || ok {
		t.Fatalf("unknown user entitled: %v %v", ok, err)
	}
}
