package dynamo

// DynamoDB attribute names used in key, condition and update expressions.
const (
	fieldAccountID             = "account_id"
	fieldUsername              = "username"
	fieldEmail                 = "email"
	fieldPasswordHash          = "password_hash"
	fieldEmailVerified         = "email_verified"
	fieldRefreshTokenHash      = "refresh_token_hash"
	fieldVerificationHash      = "verification_hash"
	fieldVerificationExpiresAt = "verification_expires_at"
	fieldResetHash             = "reset_hash"
	fieldResetExpiresAt        = "reset_expires_at"
	fieldUpdatedAt             = "updated_at"

	fieldIdentity = "identity"

	indexVerificationHash = "verification_hash-index"
	indexResetHash        = "reset_hash-index"
)
