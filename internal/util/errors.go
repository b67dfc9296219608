package util

import (
	"errors"
	"fmt"
)

// 错误分类，控制器按类别映射 HTTP 状态码
var (
	ErrValidation         = errors.New("validation failed")
	ErrForbidden          = errors.New("permission denied")
	ErrNotFound           = errors.New("not found")
	ErrGradingUnavailable = errors.New("grading unavailable")
	ErrConflict           = errors.New("conflict")
)

var (
	ErrUserNotFound     = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrEmailRegistered  = fmt.Errorf("%w: email already registered", ErrValidation)
	ErrBadCredentials   = errors.New("invalid email or password")
	ErrMissionNotFound  = fmt.Errorf("%w: mission not found", ErrNotFound)
	ErrRoutineNotFound  = fmt.Errorf("%w: routine not found", ErrNotFound)
	ErrResultNotFound   = fmt.Errorf("%w: level test result not found", ErrNotFound)
	ErrNotRoutineOwner  = fmt.Errorf("%w: routine belongs to another learner", ErrForbidden)
	ErrNotResultOwner   = fmt.Errorf("%w: result belongs to another learner", ErrForbidden)
	ErrNotEntitled      = fmt.Errorf("%w: active subscription required", ErrForbidden)
	ErrEmptyResponse    = fmt.Errorf("%w: response text is empty", ErrValidation)
	ErrUnknownTheme     = fmt.Errorf("%w: unknown routine theme", ErrValidation)
	ErrUnknownMode      = fmt.Errorf("%w: unknown response mode", ErrValidation)
	ErrAudioUnavailable = fmt.Errorf("%w: audio grading unavailable", ErrValidation)
	ErrAudioTooLong     = fmt.Errorf("%w: audio clip is too long", ErrValidation)
	ErrEmptySubmission  = fmt.Errorf("%w: no answers submitted", ErrValidation)
	ErrRoutineActive    = fmt.Errorf("%w: an active routine already exists", ErrConflict)
)
