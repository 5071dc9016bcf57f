package validator

import (
	"encoding/base64"
	"testing"

	"github.com/go-playground/validator/v10"
)

type testPayload struct {
	Token    string `json:"token" validate:"required,notblank"`
	Email    string `json:"email" validate:"required,email"`
	Position int    `json:"position" validate:"gte=0"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := testPayload{
		Token:    "abc",
		Email:    "guardian@example.com",
		Position: 2,
	}

	if err := ValidateStruct(payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateStructFailures(t *testing.T) {
	payload := testPayload{
		Token:    "   ",
		Email:    "invalid",
		Position: -1,
	}

	err := ValidateStruct(payload)
	if err == nil {
		t.Fatal("expected validation error")
	}

	vErrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	if len(vErrs) != 3 {
		t.Fatalf("expected 3 validation errors, got %d", len(vErrs))
	}

	foundToken := false
	for _, v := range vErrs {
		if v.Field == "token" && v.Tag == "notblank" {
			foundToken = true
		}
	}

	if !foundToken {
		t.Fatal("expected token field to fail notblank")
	}
}

func TestSignaturePNG(t *testing.T) {
	type submission struct {
		Signature string `json:"signature" validate:"signature_png"`
	}

	png := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, 0, 0, 0, 0)
	encoded := base64.StdEncoding.EncodeToString(png)

	cases := []struct {
		value string
		valid bool
	}{
		{"", true},
		{encoded, true},
		{"data:image/png;base64," + encoded, true},
		{"data:image/jpeg;base64," + encoded, false},
		{base64.StdEncoding.EncodeToString([]byte("not a png")), false},
		{"%%%", false},
	}

	for _, tc := range cases {
		value, valid := tc.value, tc.valid
		err := ValidateStruct(submission{Signature: value})
		if valid && err != nil {
			t.Fatalf("expected %q to validate, got %v", value, err)
		}
		if !valid && err == nil {
			t.Fatalf("expected %q to be rejected", value)
		}
	}
}

func TestDecodeSignaturePNG(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 1}
	data, err := DecodeSignaturePNG("data:image/png;base64," + base64.StdEncoding.EncodeToString(png))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(data) != len(png) {
		t.Fatalf("expected %d bytes, got %d", len(png), len(data))
	}
}

func TestRegisterValidation(t *testing.T) {
	err := RegisterValidation("campfire", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == "campfire"
	})
	if err != nil {
		t.Fatalf("register validation: %v", err)
	}

	type custom struct {
		Value string `validate:"campfire"`
	}

	if err := ValidateStruct(custom{Value: "campfire"}); err != nil {
		t.Fatalf("expected validation to pass, got %v", err)
	}
	if err := ValidateStruct(custom{Value: "other"}); err == nil {
		t.Fatal("expected validation to fail for non-matching value")
	}
}
