package handlers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/cmsconsole/internal/services"
	appErrors "github.com/charlesng35/cmsconsole/pkg/errors"
	"github.com/charlesng35/cmsconsole/pkg/response"
	appValidator "github.com/charlesng35/cmsconsole/pkg/validator"
)

const dateOnlyLayout = "2006-01-02"

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When validation fails, an error response is automatically written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewValidation("invalid JSON payload"))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.NewValidation(formatValidationError(err)))
		return false
	}

	return true
}

func formatValidationError(err error) string {
	if err == nil {
		return "invalid request payload"
	}

	ve, ok := err.(appValidator.ValidationErrors)
	if !ok || len(ve) == 0 {
		return "invalid request payload"
	}

	messages := make([]string, 0, len(ve))
	for _, failure := range ve {
		field := failure.Field
		switch failure.Tag {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s characters", field, failure.Param))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(failure.Param, " ", ", ")))
		case "slug":
			messages = append(messages, fmt.Sprintf("%s must be lowercase letters, digits or . _ : -", field))
		default:
			if failure.Param != "" {
				messages = append(messages, fmt.Sprintf("%s failed validation: %s=%s", field, failure.Tag, failure.Param))
			} else {
				messages = append(messages, fmt.Sprintf("%s failed validation: %s", field, failure.Tag))
			}
		}
	}
	return strings.Join(messages, "; ")
}

// parseIntQuery returns 0 when key is absent. Present values must be positive integers.
func parseIntQuery(c *gin.Context, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return 0, appErrors.NewValidation(fmt.Sprintf("%s must be a positive integer", key))
	}
	return parsed, nil
}

func parsePagination(c *gin.Context) (services.Pagination, error) {
	page, err := parseIntQuery(c, "page")
	if err != nil {
		return services.Pagination{}, err
	}
	limit, err := parseIntQuery(c, "limit")
	if err != nil {
		return services.Pagination{}, err
	}
	return services.Pagination{Page: page, Limit: limit}, nil
}

// parseDateRange reads startDate and endDate. Both accept RFC3339 or YYYY-MM-DD; a
// date-only endDate covers the whole day.
func parseDateRange(c *gin.Context) (services.DateRange, error) {
	var out services.DateRange

	from, err := parseDateQuery(c, "startDate", false)
	if err != nil {
		return out, err
	}
	to, err := parseDateQuery(c, "endDate", true)
	if err != nil {
		return out, err
	}
	out.From, out.To = from, to
	return out, nil
}

func parseDateQuery(c *gin.Context, key string, endOfDay bool) (*time.Time, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		t = t.UTC()
		return &t, nil
	}

	t, err := time.ParseInLocation(dateOnlyLayout, value, time.UTC)
	if err != nil {
		return nil, appErrors.NewValidation(fmt.Sprintf("%s must be an RFC3339 timestamp or YYYY-MM-DD date", key))
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func parseBoolQuery(c *gin.Context, key string) (*bool, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return nil, appErrors.NewValidation(fmt.Sprintf("%s must be true or false", key))
	}
	return &parsed, nil
}

func parseIDParam(c *gin.Context) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		return 0, appErrors.NewValidation("id must be a positive integer")
	}
	return id, nil
}
