package cache

import (
	"github.com/saiset-co/sai-aggregator/types"
	"github.com/saiset-co/sai-aggregator/utils"
)

// JSONCodec stores values of type T as JSON. Decode always yields *T, so
// readers can type-assert without knowing which store produced the value.
type JSONCodec[T any] struct{}

func (JSONCodec[T]) Encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case *T:
		if v == nil {
			return nil, types.Errorf(types.ErrCacheOperationFailed, "nil value")
		}
		return utils.Marshal(v)
	case T:
		return utils.Marshal(&v)
	default:
		return nil, types.Errorf(types.ErrCacheOperationFailed, "unsupported value type %T", value)
	}
}

func (JSONCodec[T]) Decode(data []byte) (interface{}, error) {
	value := new(T)
	if err := utils.Unmarshal(data, value); err != nil {
		return nil, types.WrapError(types.ErrCacheEntryCorrupt, err.Error())
	}
	return value, nil
}
