package client

// ErrorClass represents a classification of provider responses.
type ErrorClass string

const (
	// ErrorClassNone is a successful response.
	ErrorClassNone ErrorClass = ""

	// ErrorClassNetwork represents timeouts, connection errors and
	// unreadable or malformed bodies.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassRateLimit represents over-quota and too-frequent replies.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNoMorePages means the requested page is past the end of the
	// results. Not an error.
	ErrorClassNoMorePages ErrorClass = "no_more_pages"

	// ErrorClassClient represents requests that will never succeed as sent
	// (bad key, bad signature, bad parameters).
	ErrorClassClient ErrorClass = "client"

	// ErrorClassApplication is every other provider failure, including
	// codes the table does not know.
	ErrorClassApplication ErrorClass = "application"
)

// InfoCodeOK is the provider's success code.
const InfoCodeOK = "10000"

// CodeTable maps provider info codes to error classes. Codes missing from
// the table classify as ErrorClassApplication.
type CodeTable map[string]ErrorClass

// DefaultCodeTable returns the AMap Web Service info codes.
func DefaultCodeTable() CodeTable {
	return CodeTable{
		InfoCodeOK: ErrorClassNone,

		// Rejected request
		"10001": ErrorClassClient, // INVALID_USER_KEY
		"10002": ErrorClassClient, // SERVICE_NOT_AVAILABLE
		"10005": ErrorClassClient, // INVALID_USER_IP
		"10006": ErrorClassClient, // INVALID_USER_DOMAIN
		"10007": ErrorClassClient, // INVALID_USER_SIGNATURE
		"10008": ErrorClassClient, // INVALID_USER_SCODE
		"10009": ErrorClassClient, // USERKEY_PLAT_NOMATCH
		"10011": ErrorClassClient, // NOT_SUPPORT_HTTPS
		"10012": ErrorClassClient, // INSUFFICIENT_PRIVILEGES
		"10013": ErrorClassClient, // USER_KEY_RECYCLED
		"20000": ErrorClassClient, // INVALID_PARAMS
		"20001": ErrorClassClient, // MISSING_REQUIRED_PARAMS
		"20002": ErrorClassClient, // ILLEGAL_REQUEST

		// Quota and frequency
		"10003": ErrorClassRateLimit, // DAILY_QUERY_OVER_LIMIT
		"10004": ErrorClassRateLimit, // ACCESS_TOO_FREQUENT
		"10010": ErrorClassRateLimit, // IP_QUERY_OVER_LIMIT
		"10014": ErrorClassRateLimit, // QPS_HAS_EXCEEDED_THE_LIMIT
		"10019": ErrorClassRateLimit, // CUQPS_HAS_EXCEEDED_THE_LIMIT
		"10020": ErrorClassRateLimit, // CKQPS_HAS_EXCEEDED_THE_LIMIT
		"10021": ErrorClassRateLimit, // CUQPS_HAS_EXCEEDED_THE_LIMIT (account level)
		"10029": ErrorClassRateLimit, // ABROAD_DAILY_QUERY_OVER_LIMIT
		"10044": ErrorClassRateLimit, // USER_DAILY_QUERY_OVER_LIMIT
		"10045": ErrorClassRateLimit, // USER_ABROAD_DAILY_QUERY_OVER_LIMIT

		// Provider side
		"20003": ErrorClassApplication, // UNKNOWN_ERROR
		"20800": ErrorClassApplication, // OUT_OF_SERVICE
	}
}

// With returns a copy of the table with extra entries. Used to declare the
// provider's end-of-results code when it has one.
func (t CodeTable) With(code string, class ErrorClass) CodeTable {
	out := make(CodeTable, len(t)+1)
	for k, v := range t {
		out[k] = v
	}
	out[code] = class
	return out
}

// Classify returns the class for an info code.
func (t CodeTable) Classify(infoCode string) ErrorClass {
	if class, ok := t[infoCode]; ok {
		return class
	}
	return ErrorClassApplication
}
