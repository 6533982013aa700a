package auth

const (
	// MetricTokensIssued 签发计数
	MetricTokensIssued = "courier_auth_tokens_issued_total"

	// MetricTokensValidated 校验计数，标签: status
	MetricTokensValidated = "courier_auth_tokens_validated_total"
)
