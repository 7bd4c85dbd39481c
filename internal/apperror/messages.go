package apperror

var messages = map[Code]string{
	CodeRequiredField:      "Required field is missing",
	CodeInvalidInput:       "Invalid input provided",
	CodeInvalidState:       "Invalid state for this operation",
	CodeNotFound:           "Resource not found",
	CodeConfigurationError: "Configuration error",

	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	CodeInternalError: "Internal error",
	CodeUnknownError:  "An unknown error occurred",

	CodeEthereumConnectionFailed: "Failed to connect to Ethereum node",
	CodeEthereumRPCError:         "Ethereum RPC call failed",
	CodeContractCallFailed:       "Contract call failed",
	CodeGasEstimationFailed:      "Gas estimation failed",

	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",

	CodeStorageError: "Storage operation failed",
	CodeCircuitOpen:  "Circuit breaker is open",

	CodeVenueQuoteFailed:   "Venue quote request failed",
	CodePoolNotFound:       "Liquidity pool not found",
	CodeInvalidQuote:       "Invalid quote",
	CodeQuoteUnavailable:   "No fresh quote available",
	CodeInsufficientQuotes: "Fewer than two venues returned a quote",

	CodeStalePrice:            "Price data is older than the allowed age",
	CodeInsufficientProfit:    "Net profit outside the configured window",
	CodeInsufficientLiquidity: "Insufficient liquidity for the requested notional",
	CodeApprovalInvalid:       "Token approval or router whitelist check failed",
	CodeSettlementFailed:      "Atomic settlement failed",
	CodeUnknownExecution:      "Unclassified execution failure",
	CodeExecutionInProgress:   "An execution for this pair is already in progress",
	CodeStopRequested:         "Stop requested by operator",
}
