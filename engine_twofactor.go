package authkit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/teamdeck/authkit/storage"
)

// ConfirmTwoFactor completes a pending login. The submitted user, method and
// method type must match the challenge recorded at password verification;
// the code is dispatched to the OTP store for EMAIL/SMS and to the TOTP
// engine for TOTP/AUTHENTICATOR. A wrong code leaves the challenge pending
// (minus one attempt) and returns ErrInvalidCode; second-factor failures
// never feed the account lockout counter.
func (e *Engine) ConfirmTwoFactor(ctx context.Context, userID, methodID string, methodType storage.MethodType, code string) (*Session, error) {
	if e == nil || e.store == nil || e.challenges == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" || methodID == "" || !methodType.Valid() {
		return nil, ErrInvalidCode
	}

	record, err := e.challenges.Get(ctx, userID)
	if err != nil {
		mapped := mapChallengeStoreError(err)
		e.emitAudit(ctx, auditEventTwoFactorFailure, userID, false, mapped, map[string]string{
			"reason": "challenge_load_failed",
		})
		return nil, mapped
	}
	if record.MethodID != methodID || record.Type != methodType {
		return e.failTwoFactorAttempt(ctx, userID, "challenge_mismatch")
	}

	method, err := e.store.MethodByID(ctx, methodID)
	if err != nil || method.UserID != userID || !method.Confirmed {
		_, _ = e.challenges.Delete(ctx, userID)
		e.emitAudit(ctx, auditEventTwoFactorFailure, userID, false, ErrInvalidCode, map[string]string{
			"reason": "method_missing",
		})
		return nil, ErrInvalidCode
	}

	ok, err := e.verifySecondFactor(ctx, method, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return e.failTwoFactorAttempt(ctx, userID, "code_mismatch")
	}

	if _, err := e.challenges.Delete(ctx, userID); err != nil {
		e.logger.WarnContext(ctx, "deleting consumed challenge", "user", userID, "error", err)
	}
	if err := e.store.TouchMethod(ctx, method.ID, e.now()); err != nil {
		e.logger.WarnContext(ctx, "stamping method last-used", "method", method.ID, "error", err)
	}

	return e.CreateSession(ctx, userID)
}

func (e *Engine) verifySecondFactor(ctx context.Context, method *storage.TwoFactorMethod, code string) (bool, error) {
	if method.Type.UsesOTP() {
		return e.verifyOTP(ctx, method.UserID, method.ID, code)
	}
	return e.totp.Verify(method.Secret, code, e.now()), nil
}

func (e *Engine) failTwoFactorAttempt(ctx context.Context, userID, reason string) (*Session, error) {
	exceeded, err := e.challenges.RecordFailure(ctx, userID, e.config.TwoFactor.MaxAttempts)
	if err != nil {
		mapped := mapChallengeStoreError(err)
		e.emitAudit(ctx, auditEventTwoFactorFailure, userID, false, mapped, map[string]string{
			"reason": reason,
		})
		return nil, mapped
	}

	if exceeded {
		e.emitAudit(ctx, auditEventTwoFactorFailure, userID, false, ErrCodeAttemptsExceeded, map[string]string{
			"reason": "attempts_exceeded",
		})
		return nil, ErrCodeAttemptsExceeded
	}

	e.emitAudit(ctx, auditEventTwoFactorFailure, userID, false, ErrInvalidCode, map[string]string{
		"reason": reason,
	})
	return nil, ErrInvalidCode
}

// ResendTwoFactorCode issues a fresh delivered code for a pending EMAIL/SMS
// challenge. The newest code wins; earlier unconsumed codes stop matching.
func (e *Engine) ResendTwoFactorCode(ctx context.Context, userID string) error {
	if e == nil || e.store == nil || e.challenges == nil {
		return ErrEngineNotReady
	}

	record, err := e.challenges.Get(ctx, userID)
	if err != nil {
		return mapChallengeStoreError(err)
	}
	if !record.Type.UsesOTP() {
		return ErrInvalidCode
	}

	method, err := e.store.MethodByID(ctx, record.MethodID)
	if err != nil || method.UserID != userID {
		return ErrInvalidCode
	}
	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return ErrInvalidCode
	}

	code, err := e.issueOTP(ctx, userID, method.ID)
	if err != nil {
		return err
	}
	if e.codeSender == nil {
		return ErrEngineNotReady
	}
	recipient := user.Email
	if method.Type == storage.MethodSMS {
		recipient = method.PhoneNumber
	}
	return e.codeSender.SendCode(ctx, method.Type, recipient, code)
}

// EnrollTOTP provisions a TOTP or AUTHENTICATOR method: a fresh secret and
// its otpauth URI for QR rendering. The method stays unconfirmed, and does
// not gate logins, until ConfirmTOTPEnrollment sees a first valid code.
func (e *Engine) EnrollTOTP(ctx context.Context, userID string, methodType storage.MethodType) (*TOTPEnrollment, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if methodType != storage.MethodTOTP && methodType != storage.MethodAuthenticator {
		return nil, fmt.Errorf("enrollment requires a device method type")
	}

	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}

	secret, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generating totp secret: %w", err)
	}

	method := &storage.TwoFactorMethod{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      methodType,
		Secret:    secret,
		Confirmed: false,
		CreatedAt: e.now(),
	}
	if err := e.store.CreateMethod(ctx, method); err != nil {
		return nil, fmt.Errorf("storing method: %w", err)
	}

	e.emitAudit(ctx, auditEventEnrollment, userID, true, nil, map[string]string{
		"method_type": string(methodType),
	})

	return &TOTPEnrollment{
		MethodID: method.ID,
		Secret:   secretBase32,
		URI:      e.totp.ProvisionURI(secretBase32, user.Email),
	}, nil
}

// ConfirmTOTPEnrollment activates a provisioned device method once the user
// proves possession with a current code. The first confirmed method of a
// user becomes primary.
func (e *Engine) ConfirmTOTPEnrollment(ctx context.Context, userID, methodID, code string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	method, err := e.store.MethodByID(ctx, methodID)
	if err != nil || method.UserID != userID {
		return ErrMethodNotFound
	}
	if method.Confirmed {
		return nil
	}
	if !e.totp.Verify(method.Secret, code, e.now()) {
		return ErrInvalidCode
	}

	if err := e.store.ConfirmMethod(ctx, methodID); err != nil {
		return fmt.Errorf("confirming method: %w", err)
	}
	return e.promoteIfOnlyMethod(ctx, userID, methodID)
}

// AddEmailMethod enrolls the account email as a delivered-code second
// factor. No possession proof is needed: the address was already verified
// at registration.
func (e *Engine) AddEmailMethod(ctx context.Context, userID string) (*storage.TwoFactorMethod, error) {
	return e.addDeliveredMethod(ctx, userID, storage.MethodEmail, "")
}

// AddSMSMethod enrolls a phone number as a delivered-code second factor.
func (e *Engine) AddSMSMethod(ctx context.Context, userID, phoneNumber string) (*storage.TwoFactorMethod, error) {
	if phoneNumber == "" {
		return nil, &ValidationError{Fields: map[string]string{"phoneNumber": "required"}}
	}
	return e.addDeliveredMethod(ctx, userID, storage.MethodSMS, phoneNumber)
}

func (e *Engine) addDeliveredMethod(ctx context.Context, userID string, methodType storage.MethodType, phoneNumber string) (*storage.TwoFactorMethod, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if _, err := e.store.UserByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}

	method := &storage.TwoFactorMethod{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        methodType,
		PhoneNumber: phoneNumber,
		Confirmed:   true,
		CreatedAt:   e.now(),
	}
	if err := e.store.CreateMethod(ctx, method); err != nil {
		return nil, fmt.Errorf("storing method: %w", err)
	}
	if err := e.promoteIfOnlyMethod(ctx, userID, method.ID); err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventEnrollment, userID, true, nil, map[string]string{
		"method_type": string(methodType),
	})
	return method, nil
}

// RemoveTwoFactorMethod deletes an enrolled method. Removing the last
// confirmed method disables two-factor for the account; removing the
// primary promotes the oldest remaining confirmed method.
func (e *Engine) RemoveTwoFactorMethod(ctx context.Context, userID, methodID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	method, err := e.store.MethodByID(ctx, methodID)
	if err != nil || method.UserID != userID {
		return ErrMethodNotFound
	}

	if err := e.store.DeleteMethod(ctx, methodID); err != nil {
		return fmt.Errorf("deleting method: %w", err)
	}

	if method.Primary {
		remaining, err := e.store.MethodsByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("listing remaining methods: %w", err)
		}
		for _, candidate := range remaining {
			if candidate.Confirmed {
				if err := e.store.SetPrimary(ctx, userID, candidate.ID); err != nil {
					return fmt.Errorf("promoting method: %w", err)
				}
				break
			}
		}
	}

	e.emitAudit(ctx, auditEventEnrollmentRemoved, userID, true, nil, map[string]string{
		"method_type": string(method.Type),
	})
	return nil
}

// SetPrimaryTwoFactorMethod marks one confirmed method primary and clears
// the flag everywhere else for the user.
func (e *Engine) SetPrimaryTwoFactorMethod(ctx context.Context, userID, methodID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	method, err := e.store.MethodByID(ctx, methodID)
	if err != nil || method.UserID != userID {
		return ErrMethodNotFound
	}
	if !method.Confirmed {
		return ErrMethodNotFound
	}

	if err := e.store.SetPrimary(ctx, userID, methodID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrMethodNotFound
		}
		return fmt.Errorf("setting primary method: %w", err)
	}
	return nil
}

// TwoFactorMethods lists a user's enrolled methods with secrets redacted.
func (e *Engine) TwoFactorMethods(ctx context.Context, userID string) ([]*storage.TwoFactorMethod, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	methods, err := e.store.MethodsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing two-factor methods: %w", err)
	}
	for _, method := range methods {
		method.Secret = nil
	}
	return methods, nil
}

func (e *Engine) promoteIfOnlyMethod(ctx context.Context, userID, methodID string) error {
	methods, err := e.store.MethodsByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("listing two-factor methods: %w", err)
	}
	confirmed := 0
	hasPrimary := false
	for _, method := range methods {
		if method.Confirmed {
			confirmed++
			if method.Primary {
				hasPrimary = true
			}
		}
	}
	if confirmed >= 1 && !hasPrimary {
		if err := e.store.SetPrimary(ctx, userID, methodID); err != nil {
			return fmt.Errorf("promoting method: %w", err)
		}
	}
	return nil
}
