package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nextmind-ai/app-verification/internal/logging"
	"github.com/nextmind-ai/app-verification/internal/middleware"
	"github.com/nextmind-ai/app-verification/internal/models"
	"github.com/nextmind-ai/app-verification/internal/observability"
	"github.com/nextmind-ai/app-verification/internal/services"
	"github.com/nextmind-ai/app-verification/internal/utils"
	"go.uber.org/zap"
)

// MailDispatcher queues outbound verification mail
type MailDispatcher interface {
	EnqueueVerification(msg services.VerificationMessage, requestID string) error
	EnqueueWelcome(email, name, requestID string) error
}

// EmailVerificationHandlers serves the email verification endpoints
type EmailVerificationHandlers struct {
	registry    *services.VerificationRegistry
	accounts    services.AccountDirectory
	dispatcher  MailDispatcher
	logger      *logging.SafeLogger
	exposeDebug bool
}

// NewEmailVerificationHandlers creates the handlers. exposeDebug echoes the
// code and token in issuance responses and must only be set in development.
func NewEmailVerificationHandlers(
	registry *services.VerificationRegistry,
	accounts services.AccountDirectory,
	dispatcher MailDispatcher,
	logger *logging.SafeLogger,
	exposeDebug bool,
) *EmailVerificationHandlers {
	return &EmailVerificationHandlers{
		registry:    registry,
		accounts:    accounts,
		dispatcher:  dispatcher,
		logger:      logger.Named("email_verification"),
		exposeDebug: exposeDebug,
	}
}

type issueParams struct {
	action         string
	email          string
	accountID      string
	displayName    string
	successMessage string
	failureMessage string
}

// SendVerification godoc
// @Summary Send a verification email
// @Description Issues a new challenge for the email, replacing any pending one, and emails its link and code.
// @Tags email-verification
// @Accept json
// @Produce json
// @Param data body models.SendVerificationRequest true "Email to verify"
// @Success 200 {object} models.SendVerificationResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /email-verification/send [post]
func (h *EmailVerificationHandlers) SendVerification(c *gin.Context) {
	var req models.SendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, msgInvalidEmail)
		return
	}

	email, err := utils.ValidateEmail(req.Email)
	if err != nil {
		respondError(c, http.StatusBadRequest, msgInvalidEmail)
		return
	}

	existing, ok := h.findAccountByEmail(c, email)
	if !ok {
		return
	}
	if existing != nil && existing.IsEmailVerified {
		respondError(c, http.StatusBadRequest, msgAlreadyVerified)
		return
	}

	params := issueParams{
		action:         utils.AuditActionIssue,
		email:          email,
		successMessage: "Verification email sent successfully",
		failureMessage: "Failed to send verification email. Please try again.",
	}
	if existing != nil {
		params.accountID = existing.ID.Hex()
		params.displayName = existing.Name
	}
	if req.UserID != "" && req.UserID != params.accountID {
		// user_id only links accounts that own the address
		h.logger.Warn("ignoring user_id that does not own the email",
			zap.String("user_id", req.UserID),
			zap.String("email", observability.MaskEmail(email)))
	}

	h.issue(c, params)
}

// ResendVerification godoc
// @Summary Resend a verification email
// @Description Replaces the pending challenge of the email with a new one and emails it again.
// @Tags email-verification
// @Accept json
// @Produce json
// @Param data body models.ResendVerificationRequest true "Email to verify"
// @Success 200 {object} models.SendVerificationResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /email-verification/resend [post]
func (h *EmailVerificationHandlers) ResendVerification(c *gin.Context) {
	var req models.ResendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, msgEmailRequired)
		return
	}

	email, err := utils.ValidateEmail(req.Email)
	if err != nil {
		respondError(c, http.StatusBadRequest, msgInvalidEmail)
		return
	}

	existing, ok := h.findAccountByEmail(c, email)
	if !ok {
		return
	}
	if existing != nil && existing.IsEmailVerified {
		respondError(c, http.StatusBadRequest, msgAlreadyVerified)
		return
	}

	params := issueParams{
		action:         utils.AuditActionResend,
		email:          email,
		successMessage: "Verification email resent successfully",
		failureMessage: "Failed to resend verification email",
	}
	if existing != nil {
		params.accountID = existing.ID.Hex()
		params.displayName = existing.Name
	}

	h.issue(c, params)
}

// findAccountByEmail returns the account of email, nil when there is none.
// It writes the error response and returns false on infrastructure errors.
func (h *EmailVerificationHandlers) findAccountByEmail(c *gin.Context, email string) (*models.Account, bool) {
	account, err := h.accounts.FindByEmail(c.Request.Context(), email)
	if err == nil {
		return account, true
	}
	if errors.Is(err, models.ErrAccountNotFound) {
		return nil, true
	}

	h.logger.Error("failed to look up account",
		zap.String("email", observability.MaskEmail(email)),
		zap.Error(err))
	respondError(c, http.StatusInternalServerError, "Failed to send verification email. Please try again.")
	return nil, false
}

func (h *EmailVerificationHandlers) issue(c *gin.Context, p issueParams) {
	requestID := c.GetString(middleware.RequestIDKey)

	challenge, err := h.registry.Issue(c.Request.Context(), services.IssueRequest{
		Email:     p.email,
		AccountID: p.accountID,
		Origin: models.RequestOrigin{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		},
	})
	if err != nil {
		outcome := models.OutcomeOf(err)
		middleware.SetAuditEvent(c, middleware.AuditEvent{
			Action:    p.action,
			Email:     p.email,
			AccountID: p.accountID,
			Outcome:   string(outcome),
		})
		if outcome == models.OutcomeValidation {
			respondError(c, http.StatusBadRequest, msgInvalidEmail)
			return
		}
		h.logger.Error("failed to issue challenge",
			zap.String("email", observability.MaskEmail(p.email)),
			zap.String("request_id", requestID),
			zap.Error(err))
		respondError(c, http.StatusInternalServerError, p.failureMessage)
		return
	}

	err = h.dispatcher.EnqueueVerification(services.VerificationMessage{
		Email:       challenge.Email,
		Token:       challenge.Token,
		Code:        challenge.Code,
		DisplayName: p.displayName,
	}, requestID)
	if err != nil {
		h.logger.Warn("failed to queue verification email",
			zap.String("email", observability.MaskEmail(challenge.Email)),
			zap.String("request_id", requestID),
			zap.Error(err))
	}

	middleware.SetAuditEvent(c, middleware.AuditEvent{
		Action:     p.action,
		Email:      challenge.Email,
		ResourceID: challenge.ID.Hex(),
		AccountID:  p.accountID,
		Outcome:    string(models.OutcomeSuccess),
	})

	resp := models.SendVerificationResponse{
		Message:   p.successMessage,
		Email:     challenge.Email,
		ExpiresAt: challenge.ExpiresAt,
	}
	if h.exposeDebug {
		resp.Debug = &models.DebugChallenge{Code: challenge.Code, Token: challenge.Token}
	}
	c.JSON(http.StatusOK, resp)
}

// VerifyEmail godoc
// @Summary Verify an email address
// @Description Consumes the pending challenge with either its token or its code and email.
// @Tags email-verification
// @Accept json
// @Produce json
// @Param data body models.VerifyEmailRequest true "Token, or code and email"
// @Success 200 {object} models.VerifyEmailResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /email-verification/verify [post]
func (h *EmailVerificationHandlers) VerifyEmail(c *gin.Context) {
	var req models.VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.Token == "" && req.Code == "") {
		respondError(c, http.StatusBadRequest, msgTokenOrCode)
		return
	}

	ctx := c.Request.Context()
	requestID := c.GetString(middleware.RequestIDKey)

	var (
		success *models.VerificationSuccess
		err     error
		method  = "token"
	)
	if req.Token != "" {
		success, err = h.registry.VerifyToken(ctx, req.Token)
	} else {
		method = "code"
		success, err = h.registry.VerifyCode(ctx, req.Email, req.Code)
	}

	if err != nil {
		outcome := models.OutcomeOf(err)
		middleware.SetAuditEvent(c, middleware.AuditEvent{
			Action:   utils.AuditActionValidate,
			Email:    utils.NormalizeEmail(req.Email),
			Outcome:  string(outcome),
			Metadata: map[string]string{"method": method},
		})

		status, message := verificationErrorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("verification failed",
				zap.String("method", method),
				zap.String("request_id", requestID),
				zap.Error(err))
		}
		respondError(c, status, message)
		return
	}

	resp := models.VerifyEmailResponse{
		Message:  "Email verified successfully!",
		Email:    success.Email,
		Verified: true,
	}

	if success.AccountID != "" {
		account, err := h.markVerified(ctx, success)
		switch {
		case err == nil:
			resp.User = account.Summary()
			if err := h.dispatcher.EnqueueWelcome(account.Email, account.Name, requestID); err != nil {
				h.logger.Warn("failed to queue welcome email",
					zap.String("account_id", success.AccountID),
					zap.Error(err))
			}
		case errors.Is(err, models.ErrAccountNotFound):
			h.logger.Warn("verified challenge has no matching account",
				zap.String("account_id", success.AccountID))
		default:
			h.logger.Error("failed to mark account email verified",
				zap.String("account_id", success.AccountID),
				zap.String("request_id", requestID),
				zap.Error(err))
		}
	}

	middleware.SetAuditEvent(c, middleware.AuditEvent{
		Action:     utils.AuditActionValidate,
		Email:      success.Email,
		ResourceID: success.ChallengeID,
		AccountID:  success.AccountID,
		Outcome:    string(models.OutcomeSuccess),
		Metadata:   map[string]string{"method": method},
	})

	c.JSON(http.StatusOK, resp)
}

// markVerified flips the verified flag of the account linked to the consumed
// challenge. Accounts whose address changed since issuance are left alone.
func (h *EmailVerificationHandlers) markVerified(ctx context.Context, success *models.VerificationSuccess) (*models.Account, error) {
	account, err := h.accounts.FindByID(ctx, success.AccountID)
	if err != nil {
		return nil, err
	}
	if utils.NormalizeEmail(account.Email) != success.Email {
		return nil, fmt.Errorf("%w: account email does not match the verified address", models.ErrAccountNotFound)
	}
	return h.accounts.MarkEmailVerified(ctx, success.AccountID)
}

// GetVerificationStatus godoc
// @Summary Get verification status
// @Description Returns the state of the challenge holding the token without consuming it.
// @Tags email-verification
// @Produce json
// @Param token path string true "Verification token"
// @Success 200 {object} models.ChallengeStatus
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /email-verification/status/{token} [get]
func (h *EmailVerificationHandlers) GetVerificationStatus(c *gin.Context) {
	token := c.Param("token")
	status, err := h.registry.StatusByToken(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, models.ErrChallengeNotFound) {
			respondError(c, http.StatusNotFound, msgRecordNotFound)
			return
		}
		h.logger.Error("failed to load verification status",
			zap.String("token", observability.MaskToken(token)),
			zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Failed to check verification status")
		return
	}

	c.JSON(http.StatusOK, status)
}

// CleanupExpired godoc
// @Summary Remove expired challenges
// @Description Deletes every challenge past its deadline. Requires an account on the admin plan.
// @Tags email-verification
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.CleanupResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /email-verification/cleanup [delete]
func (h *EmailVerificationHandlers) CleanupExpired(c *gin.Context) {
	deleted, err := h.registry.ReapExpired(c.Request.Context())

	outcome := models.OutcomeSuccess
	if err != nil {
		outcome = models.OutcomeInfrastructure
	}
	middleware.SetAuditEvent(c, middleware.AuditEvent{
		Action:   utils.AuditActionCleanup,
		Outcome:  string(outcome),
		Metadata: map[string]string{"deleted_count": strconv.FormatInt(deleted, 10)},
	})

	if err != nil {
		respondError(c, http.StatusInternalServerError, "Cleanup failed")
		return
	}

	h.logger.Info("manual cleanup completed",
		zap.String("user_id", c.GetString(middleware.UserIDKey)),
		zap.Int64("deleted", deleted))

	c.JSON(http.StatusOK, models.CleanupResponse{
		Message:      "Cleanup completed",
		DeletedCount: deleted,
	})
}
