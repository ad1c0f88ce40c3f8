package sync

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds reported by Client. Match them with errors.Is.
var (
	ErrSchemaProbe           = errors.New("探测表结构失败")
	ErrUnsupportedColumnType = errors.New("无法比较该类型的列")
	ErrInvalidKeyColumn      = errors.New("键中包含无效的列名")
	ErrStatementPrepare      = errors.New("预编译语句失败")
	ErrFetch                 = errors.New("读取数据行失败")
	ErrWrite                 = errors.New("写入数据失败")
	ErrCeiling               = errors.New("已达到破坏性操作上限")
	ErrMaxInserts            = fmt.Errorf("%w（max_inserts）", ErrCeiling)
	ErrMaxDeletes            = fmt.Errorf("%w（max_deletes）", ErrCeiling)
	ErrCommit                = errors.New("提交事务失败")
	ErrRollback              = errors.New("回滚事务失败")
	ErrNotInitialized        = errors.New("客户端尚未初始化")
	ErrClosed                = errors.New("客户端已关闭")
)

// EndpointError is the error returned by every failing Client operation.
// Kind is one of the Err* values above, Err the underlying cause.
type EndpointError struct {
	Op    string
	Table string
	Kind  error
	Err   error
}

func (e *EndpointError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Table != "" {
		b.WriteString(" 表=")
		b.WriteString(e.Table)
	}
	b.WriteString("：")
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString("：")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *EndpointError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
