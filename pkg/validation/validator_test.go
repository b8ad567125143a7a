package validation_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-rentreport/pkg/clock"
	"github.com/goliatone/go-rentreport/pkg/model"
	"github.com/goliatone/go-rentreport/pkg/validation"
)

var now = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

func newValidator() *validation.Validator {
	return validation.New(validation.WithClock(clock.NewManual(now)))
}

func signUpForm() model.FormModel {
	return model.FormModel{
		ID: "registration",
		Fields: []model.Field{
			{Name: "firstName", Kind: model.KindString, Required: true},
			{Name: "email", Kind: model.KindEmail, Required: true},
			{Name: "password", Kind: model.KindString, Required: true, Rules: []model.Rule{
				{Kind: model.RuleMinLength, Params: map[string]string{"value": "8"}},
			}},
			{Name: "confirmPassword", Kind: model.KindString, Required: true},
			{Name: "birthDate", Kind: model.KindDate, Required: true},
			{Name: "nationalId", Kind: model.KindString, Required: true, Rules: []model.Rule{
				{Kind: model.RuleDigits, Params: map[string]string{"value": "9"}, Message: "Enter your 9-digit ID"},
			}},
		},
		Refinements: []model.Refinement{
			{Rule: "passwordMatch"},
			{Rule: "minAge", Params: map[string]string{"field": "birthDate"}},
		},
	}
}

func validSignUp() model.Values {
	return model.Values{
		"firstName":       "Ada",
		"email":           "ada@example.com",
		"password":        "Secret#123",
		"confirmPassword": "Secret#123",
		"birthDate":       time.Date(1990, 4, 2, 0, 0, 0, 0, time.UTC),
		"nationalId":      "123456789",
	}
}

func TestValidate_SingleMissingRequiredField(t *testing.T) {
	values := validSignUp()
	values["firstName"] = "   "

	result, err := newValidator().Validate(signUpForm(), values)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	want := validation.Result{
		Stage:  validation.StageFields,
		Errors: model.Errors{"firstName": "This field is required"},
	}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_RefinementsRunAfterFieldsPass(t *testing.T) {
	values := validSignUp()
	values["confirmPassword"] = "Different#1"
	values["nationalId"] = "12345"

	v := newValidator()
	result, err := v.Validate(signUpForm(), values)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.Stage != validation.StageFields || result.Errors.Has("confirmPassword") {
		t.Fatalf("refinements must wait for field rules, got %#v", result)
	}
	if got := result.Errors["nationalId"]; got != "Enter your 9-digit ID" {
		t.Fatalf("unexpected nationalId message %q", got)
	}

	values["nationalId"] = "123456789"
	result, err = v.Validate(signUpForm(), values)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	want := validation.Result{
		Stage:  validation.StageRefinements,
		Errors: model.Errors{"confirmPassword": "Passwords do not match"},
	}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_Valid(t *testing.T) {
	result, err := newValidator().Validate(signUpForm(), validSignUp())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !result.Valid || len(result.Errors) != 0 {
		t.Fatalf("expected valid result, got %#v", result)
	}
}

func historyForm() model.FormModel {
	return model.FormModel{
		ID: "history",
		Fields: []model.Field{
			{Name: "monthlyRent", Kind: model.KindNumber, Required: true, Rules: []model.Rule{
				{Kind: model.RuleMin, Params: map[string]string{"value": "1"}},
			}},
			{Name: "paymentDate", Kind: model.KindDate, Required: true, Rules: []model.Rule{
				{Kind: model.RuleNotAfter, Params: map[string]string{"months": "0"}},
			}},
			{
				Name:     "history",
				Kind:     model.KindSection,
				MinItems: 1,
				Fields: []model.Field{
					{Name: "verifyWithLandlord", Kind: model.KindBoolean},
					{Name: "landlordPhone", Kind: model.KindString, RequiredWhen: "verifyWithLandlord == true"},
				},
			},
		},
	}
}

func TestValidateFields_SectionEntriesAndRequiredWhen(t *testing.T) {
	values := model.Values{
		"monthlyRent": 0.0,
		"paymentDate": now.AddDate(0, 0, 1),
		"history": []model.Values{
			{"verifyWithLandlord": false},
			{"verifyWithLandlord": true, "landlordPhone": ""},
		},
	}

	want := model.Errors{
		"monthlyRent":             "Must be at least 1",
		"paymentDate":             "Date cannot be in the future",
		"history.1.landlordPhone": "This field is required",
	}
	if diff := cmp.Diff(want, newValidator().ValidateFields(historyForm(), values)); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateField_Incremental(t *testing.T) {
	values := model.Values{
		"history": []model.Values{
			{"verifyWithLandlord": true},
		},
	}
	v := newValidator()

	message, err := v.ValidateField(historyForm(), values, "history.0.landlordPhone")
	if err != nil {
		t.Fatalf("validate field: %v", err)
	}
	if message != "This field is required" {
		t.Fatalf("unexpected message %q", message)
	}

	message, err = v.ValidateField(historyForm(), values, "monthlyRent")
	if err != nil {
		t.Fatalf("validate field: %v", err)
	}
	if message != "This field is required" {
		t.Fatalf("unexpected message %q", message)
	}

	if _, err := v.ValidateField(historyForm(), values, "nope"); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestValidateRaw_ReportsConversionErrors(t *testing.T) {
	_, result, err := newValidator().ValidateRaw(historyForm(), map[string]any{
		"monthlyRent": "twelve",
		"paymentDate": "2026-10-01",
		"history":     []any{map[string]any{"verifyWithLandlord": "no"}},
	})
	if err != nil {
		t.Fatalf("validate raw: %v", err)
	}
	want := model.Errors{"monthlyRent": "Enter a valid number"}
	if diff := cmp.Diff(want, result.Errors); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_UnknownRefinement(t *testing.T) {
	form := signUpForm()
	form.Refinements = append(form.Refinements, model.Refinement{Rule: "doesNotExist"})
	if _, err := newValidator().Validate(form, validSignUp()); err == nil {
		t.Fatalf("expected configuration error")
	}
}
