package errorbank

// Business rule codes.
const (
	CodeOrderNotModifiable       = "ORDER_NOT_MODIFIABLE"
	CodeOrderHasNoItems          = "ORDER_HAS_NO_ITEMS"
	CodeOrderAlreadyTerminal     = "ORDER_ALREADY_TERMINAL"
	CodeOrderNotInProgress       = "ORDER_NOT_IN_PROGRESS"
	CodeTableNotAvailable        = "TABLE_NOT_AVAILABLE"
	CodeProductNotAvailable      = "PRODUCT_NOT_AVAILABLE"
	CodeOrderNotReady            = "ORDER_NOT_READY"
	CodeUnsupportedPaymentMethod = "UNSUPPORTED_PAYMENT_METHOD"
)

// Input error codes.
const (
	CodeInsufficientPayment = "INSUFFICIENT_PAYMENT"
	CodeInvalidOrderLine    = "INVALID_ORDER_LINE"
	CodeInvalidQuantity     = "INVALID_QUANTITY"
	CodeInvalidDiscount     = "INVALID_DISCOUNT"
	CodeInvalidServiceType  = "INVALID_SERVICE_TYPE"
	CodeInvalidAmount       = "INVALID_AMOUNT"
	CodeInvalidStatus       = "INVALID_STATUS"
	CodeTableRequired       = "TABLE_REQUIRED"
	CodeCustomerRequired    = "CUSTOMER_REQUIRED"
	CodeMissingIdentity     = "MISSING_IDENTITY"
)

// Not found codes.
const (
	CodeBranchNotFound    = "BRANCH_NOT_FOUND"
	CodeTableNotFound     = "TABLE_NOT_FOUND"
	CodeCustomerNotFound  = "CUSTOMER_NOT_FOUND"
	CodeProductNotFound   = "PRODUCT_NOT_FOUND"
	CodeComboNotFound     = "COMBO_NOT_FOUND"
	CodeOrderNotFound     = "ORDER_NOT_FOUND"
	CodeOrderItemNotFound = "ORDER_ITEM_NOT_FOUND"
)
