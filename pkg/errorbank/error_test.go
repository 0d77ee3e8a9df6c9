package errorbank

import (
	"errors"
	"net/http"
	"testing"

	"google.golang.org/grpc/codes"
)

func TestStatusAndGRPCCodes(t *testing.T) {
	cases := []struct {
		err    *AppError
		status int
		code   codes.Code
	}{
		{BadRequest("bad"), http.StatusBadRequest, codes.InvalidArgument},
		{Unauthorized("who"), http.StatusUnauthorized, codes.Unauthenticated},
		{Forbidden("no"), http.StatusForbidden, codes.PermissionDenied},
		{NotFound("gone"), http.StatusNotFound, codes.NotFound},
		{Conflict("refused"), http.StatusConflict, codes.FailedPrecondition},
		{Internal("boom"), http.StatusInternalServerError, codes.Internal},
	}
	for _, tc := range cases {
		t.Run(string(tc.err.Kind()), func(t *testing.T) {
			if got := tc.err.StatusCode(); got != tc.status {
				t.Fatalf("StatusCode() = %d, want %d", got, tc.status)
			}
			if got := tc.err.GRPCCode(); got != tc.code {
				t.Fatalf("GRPCCode() = %v, want %v", got, tc.code)
			}
		})
	}
}

func TestFromWrapsUnknownErrors(t *testing.T) {
	cause := errors.New("disk on fire")
	appErr := From(cause)
	if appErr.Kind() != KindInternal {
		t.Fatalf("Kind() = %s, want internal", appErr.Kind())
	}
	if !errors.Is(appErr, cause) {
		t.Fatal("From should keep the cause reachable through errors.Is")
	}
	if From(nil) != nil {
		t.Fatal("From(nil) should be nil")
	}
}

func TestFromKeepsWrappedAppError(t *testing.T) {
	original := Conflict("refused", WithDetail("reason", "already_finalized"))
	wrapped := errors.Join(errors.New("context"), original)
	got := From(wrapped)
	if got != original {
		t.Fatalf("From() = %v, want original AppError", got)
	}
	if got.Details()["reason"] != "already_finalized" {
		t.Fatalf("Details() = %v", got.Details())
	}
}

func TestDetailsMergeAndMessageDefault(t *testing.T) {
	err := New(KindBadRequest, "", WithDetails(map[string]any{"a": 1}), WithDetail("b", 2))
	if err.Message() != string(KindBadRequest) {
		t.Fatalf("Message() = %q", err.Message())
	}
	if len(err.Details()) != 2 {
		t.Fatalf("Details() = %v", err.Details())
	}
}
