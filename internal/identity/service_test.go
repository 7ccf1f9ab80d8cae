package identity

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/p2pcore/internal/authgate"
)

func newTestService() *Service {
	return NewServiceWithCost(NewMemoryRepository(), bcrypt.MinCost)
}

func TestProvisionAndAuthenticate(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	user, err := svc.Provision(ctx, Credentials{Phone: "+2348030000000", Password: "secret1", DeviceID: "device-1"}, "Ada")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if user.HasPIN() {
		t.Fatalf("new user must not have a PIN")
	}

	authed, err := svc.Authenticate(ctx, Credentials{Phone: user.Phone, Password: "secret1", DeviceID: "device-1"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != user.ID {
		t.Fatalf("expected %s, got %s", user.ID, authed.ID)
	}

	if _, err := svc.Authenticate(ctx, Credentials{Phone: user.Phone, Password: "wrong!!"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestAuthenticateDeviceMismatch(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Provision(ctx, Credentials{Phone: "123", Password: "secret1", DeviceID: "device-1"}, ""); err != nil {
		t.Fatalf("provision: %v", err)
	}

	if _, err := svc.Authenticate(ctx, Credentials{Phone: "123", Password: "secret1", DeviceID: "device-2"}); err == nil {
		t.Fatalf("expected device mismatch error")
	}
}

func TestPINLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	user, _ := svc.Provision(ctx, Credentials{Phone: "555", Password: "secret1"}, "")

	has, err := svc.HasPIN(ctx, user.ID)
	if err != nil || has {
		t.Fatalf("expected no PIN, got has=%v err=%v", has, err)
	}
	if err := svc.VerifyPIN(ctx, user.ID, "1234"); !errors.Is(err, authgate.ErrIncorrectPIN) {
		t.Fatalf("expected incorrect pin without setup, got %v", err)
	}

	if err := svc.SetPIN(ctx, user.ID, "12a4"); !errors.Is(err, ErrInvalidPINFormat) {
		t.Fatalf("expected format error, got %v", err)
	}
	if err := svc.SetPIN(ctx, user.ID, "1234"); err != nil {
		t.Fatalf("set pin: %v", err)
	}

	has, _ = svc.HasPIN(ctx, user.ID)
	if !has {
		t.Fatalf("expected PIN to be configured")
	}
	if err := svc.VerifyPIN(ctx, user.ID, "4321"); !errors.Is(err, authgate.ErrIncorrectPIN) {
		t.Fatalf("expected incorrect pin, got %v", err)
	}
	if err := svc.VerifyPIN(ctx, user.ID, "1234"); err != nil {
		t.Fatalf("verify pin: %v", err)
	}
}

func TestPINCannotBeReplacedWithoutCurrentPIN(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	user, _ := svc.Provision(ctx, Credentials{Phone: "556", Password: "secret1"}, "")
	if err := svc.SetPIN(ctx, user.ID, "1234"); err != nil {
		t.Fatalf("set pin: %v", err)
	}

	if err := svc.SetPIN(ctx, user.ID, "9999"); !errors.Is(err, ErrPINAlreadySet) {
		t.Fatalf("expected ErrPINAlreadySet, got %v", err)
	}
	if err := svc.ChangePIN(ctx, user.ID, "0000", "9999"); !errors.Is(err, authgate.ErrIncorrectPIN) {
		t.Fatalf("expected incorrect current pin, got %v", err)
	}
	if err := svc.VerifyPIN(ctx, user.ID, "1234"); err != nil {
		t.Fatalf("original pin must still verify: %v", err)
	}

	if err := svc.ChangePIN(ctx, user.ID, "1234", "99x9"); !errors.Is(err, ErrInvalidPINFormat) {
		t.Fatalf("expected format error, got %v", err)
	}
	if err := svc.ChangePIN(ctx, user.ID, "1234", "9999"); err != nil {
		t.Fatalf("change pin: %v", err)
	}
	if err := svc.VerifyPIN(ctx, user.ID, "9999"); err != nil {
		t.Fatalf("new pin must verify: %v", err)
	}
	if err := svc.VerifyPIN(ctx, user.ID, "1234"); !errors.Is(err, authgate.ErrIncorrectPIN) {
		t.Fatalf("old pin must be rejected, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	user, _ := svc.Provision(ctx, Credentials{Phone: "+2348031111111", Password: "secret1"}, "Bola")

	byPhone, err := svc.Resolve(ctx, " +2348031111111 ")
	if err != nil {
		t.Fatalf("resolve by phone: %v", err)
	}
	if byPhone.UserID != user.ID || byPhone.DisplayName != "Bola" {
		t.Fatalf("unexpected summary %+v", byPhone)
	}

	byID, err := svc.Resolve(ctx, user.ID)
	if err != nil || byID.Phone != user.Phone {
		t.Fatalf("resolve by id: %+v %v", byID, err)
	}

	if _, err := svc.Resolve(ctx, "+000"); !errors.Is(err, ErrRecipientNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
