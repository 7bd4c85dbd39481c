package apperror

// Code identifies an error kind. Callers match on codes, never on messages.
type Code string

// General codes.
const (
	CodeRequiredField      Code = "REQUIRED_FIELD"
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeInvalidState       Code = "INVALID_STATE"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Infrastructure codes.
const (
	CodeEthereumConnectionFailed Code = "ETHEREUM_CONNECTION_FAILED"
	CodeEthereumRPCError         Code = "ETHEREUM_RPC_ERROR"
	CodeContractCallFailed       Code = "CONTRACT_CALL_FAILED"
	CodeGasEstimationFailed      Code = "GAS_ESTIMATION_FAILED"

	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"

	CodeStorageError Code = "STORAGE_ERROR"

	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)

// Pricing codes.
const (
	CodeVenueQuoteFailed   Code = "VENUE_QUOTE_FAILED"
	CodePoolNotFound       Code = "POOL_NOT_FOUND"
	CodeInvalidQuote       Code = "INVALID_QUOTE"
	CodeQuoteUnavailable   Code = "QUOTE_UNAVAILABLE"
	CodeInsufficientQuotes Code = "INSUFFICIENT_QUOTES"
)

// Scoring and execution codes.
const (
	CodeStalePrice            Code = "STALE_PRICE"
	CodeInsufficientProfit    Code = "INSUFFICIENT_PROFIT"
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"
	CodeApprovalInvalid       Code = "APPROVAL_INVALID"
	CodeSettlementFailed      Code = "SETTLEMENT_FAILED"
	CodeUnknownExecution      Code = "UNKNOWN_EXECUTION_ERROR"
	CodeExecutionInProgress   Code = "EXECUTION_IN_PROGRESS"
	CodeStopRequested         Code = "STOP_REQUESTED"
)
