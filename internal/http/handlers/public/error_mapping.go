package public

import (
	"errors"

	"github.com/pagecart/pagecart/internal/http/response"
	"github.com/pagecart/pagecart/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.msg, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackMsg, err)
}

var checkoutErrorRules = []mappedHandlerError{
	{target: service.ErrOrderItemsEmpty, code: response.CodeBadRequest, msg: "order items empty"},
	{target: service.ErrOrderItemInvalid, code: response.CodeBadRequest, msg: "order item invalid"},
	{target: service.ErrPaymentAccountMissing, code: response.CodeBadRequest, msg: "payment account missing"},
	{target: service.ErrPaymentAccountConfigInvalid, code: response.CodeBadRequest, msg: "payment account config invalid"},
	{target: service.ErrWebhookProviderNotSupported, code: response.CodeBadRequest, msg: "payment provider not supported"},
	{target: service.ErrPaymentGatewayRequestFailed, code: response.CodeBadRequest, msg: "payment gateway request failed"},
	{target: service.ErrPaymentGatewayResponseInvalid, code: response.CodeBadRequest, msg: "payment gateway response invalid"},
}

func respondCheckoutError(c *gin.Context, err error) {
	respondWithMappedError(c, err, checkoutErrorRules, response.CodeInternal, "order create failed")
}
