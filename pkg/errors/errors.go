// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidArg = errors.New("invalid argument")

	// ErrEmptySubmission 提交的 work unit 列表为空
	ErrEmptySubmission = fmt.Errorf("%w: no work units submitted", ErrInvalidArg)
	// ErrUnknownJob 调度器不认识该 job id（从未提交或已被淘汰出保留窗口）
	ErrUnknownJob = fmt.Errorf("%w: unknown job", ErrNotFound)
	// ErrJobFinished job 已处于终态，无法取消
	ErrJobFinished = errors.New("job already finished")
	// ErrSchedulerStopped 调度循环未运行
	ErrSchedulerStopped = errors.New("scheduler is not running")
)

// Is 转发标准库 errors.Is，便于调用方只引入本包
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As 转发标准库 errors.As
func As(err error, target any) bool {
	return errors.As(err, target)
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
