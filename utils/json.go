package utils

import (
	"bytes"
	"sync"

	"github.com/bytedance/sonic"
)

type JSONBufferPool struct {
	pool sync.Pool
}

func (p *JSONBufferPool) Get() *bytes.Buffer {
	if buf := p.pool.Get(); buf != nil {
		return buf.(*bytes.Buffer)
	}
	return bytes.NewBuffer(make([]byte, 0, 1024))
}

func (p *JSONBufferPool) Put(buf *bytes.Buffer) {
	buf.Reset()
	if buf.Cap() < 64*1024 {
		p.pool.Put(buf)
	}
}

var jsonPool = &JSONBufferPool{}

// sortedAPI keeps map keys ordered so equal values always encode to equal bytes.
var sortedAPI = sonic.Config{SortMapKeys: true, EscapeHTML: false}.Froze()

func MarshalToBuffer(data interface{}, buf *bytes.Buffer) error {
	buf.Reset()
	encoder := sortedAPI.NewEncoder(buf)
	return encoder.Encode(data)
}

func Marshal(data interface{}) ([]byte, error) {
	buf := jsonPool.Get()
	defer jsonPool.Put(buf)

	if err := MarshalToBuffer(data, buf); err != nil {
		return nil, err
	}

	encoded := bytes.TrimRight(buf.Bytes(), "\n")
	result := make([]byte, len(encoded))
	copy(result, encoded)
	return result, nil
}

func MarshalIndent(data interface{}) ([]byte, error) {
	return sortedAPI.MarshalIndent(data, "", "  ")
}

func Unmarshal[T any](data []byte, target *T) error {
	return sonic.ConfigDefault.Unmarshal(data, target)
}
