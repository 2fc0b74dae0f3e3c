package scte104

import "errors"

// 解码错误分类。除 ErrNotScteData 外都表示载荷已损坏，
// 调用方跳过该载荷继续处理下一个。
var (
	// ErrNotScteData 载荷不是 SCTE-104 数据(快速拒绝，属正常路径)
	ErrNotScteData = errors.New("not scte-104 data")

	// ErrOperationLengthMismatch 操作声明长度与实际消费字节数不符
	ErrOperationLengthMismatch = errors.New("operation length mismatch")

	// ErrTrailingOrMissingBytes 消息总长与载荷长度不符且尾部不是填充
	ErrTrailingOrMissingBytes = errors.New("trailing or missing bytes")

	// ErrTruncatedOperation 操作体在声明区域内被截断
	ErrTruncatedOperation = errors.New("truncated operation")
)
