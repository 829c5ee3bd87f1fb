package api

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/semmidev/dbtoolkit/internal/domain"
)

var registerOnce sync.Once

// registerValidators adds the custom binding rules. gin shares one validator
// engine process-wide, so this runs once.
func registerValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("dbtype", func(fl validator.FieldLevel) bool {
				return domain.DBType(fl.Field().String()).Valid()
			})
			_ = v.RegisterValidation("backuptype", func(fl validator.FieldLevel) bool {
				s := fl.Field().String()
				return s == "" || domain.BackupType(s).Valid()
			})
		}
	})
}
