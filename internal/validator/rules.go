package validator

import (
	"ngo_donation/internal/logger"

	"github.com/go-playground/validator/v10"
)

// registerCustomRules 注册自定义校验规则；注册失败属于启动期错误，直接退出。
func registerCustomRules(v *validator.Validate) {
	mustRegister := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			logger.Fatal("failed to register custom validation tag", "tag", tag, "error", err)
		}
	}

	mustRegister("donor_email", validateDonorEmail)
}

func validateDonorEmail(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // 由 required 处理
	}
	return donorEmailPattern.MatchString(value)
}
