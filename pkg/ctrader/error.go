package ctrader

type ErrorResponse uint8

const (
	ErrorUnknown ErrorResponse = iota
	ErrorNotFoundAccount
	ErrorNotFoundSymbol
	ErrorNotFoundAsset
	ErrorNotFoundOrder
	ErrorNotFoundDeal
	ErrorNotFoundPosition
	ErrorDuplicateCorrelation
	ErrorMalformedPayload
	ErrorMissingDirectives
	ErrorAmbiguousDirectives
	ErrorPositionOrderPrice
)

func (e ErrorResponse) Error() string {
	return errorMapping[e]
}

var errorMapping = map[ErrorResponse]string{
	ErrorUnknown:              "unknown",
	ErrorNotFoundAccount:      "account not found",
	ErrorNotFoundSymbol:       "symbol not found",
	ErrorNotFoundAsset:        "asset not found",
	ErrorNotFoundOrder:        "order not found",
	ErrorNotFoundDeal:         "deal not found",
	ErrorNotFoundPosition:     "position not found",
	ErrorDuplicateCorrelation: "duplicate correlation token",
	ErrorMalformedPayload:     "malformed wire payload",
	ErrorMissingDirectives:    "order directives need a symbol or a position",
	ErrorAmbiguousDirectives:  "order directives carry both a symbol and a position",
	ErrorPositionOrderPrice:   "position orders take no limit or stop price",
}
