package btree

import (
	"bytes"
	"encoding/binary"

	"selvi/common"
)

// KeySerializer converts keys to and from their fixed size on page representation.
type KeySerializer interface {
	Serialize(key common.Key) ([]byte, error)
	Deserialize([]byte) (common.Key, error)
	Size() int
}

type Int64KeySerializer struct{}

func (s *Int64KeySerializer) Serialize(key common.Key) ([]byte, error) {
	buf := bytes.Buffer{}
	if err := binary.Write(&buf, binary.BigEndian, int64(key.(Int64Key))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Int64KeySerializer) Deserialize(data []byte) (common.Key, error) {
	reader := bytes.NewReader(data)
	var key int64
	if err := binary.Read(reader, binary.BigEndian, &key); err != nil {
		return nil, err
	}
	return Int64Key(key), nil
}

func (s *Int64KeySerializer) Size() int {
	return 8
}

// StringKeySerializer stores keys as fixed width byte strings, padding with zero bytes.
type StringKeySerializer struct {
	Len int
}

func (s *StringKeySerializer) Serialize(key common.Key) ([]byte, error) {
	res := make([]byte, s.Len)
	copy(res, string(key.(StringKey)))
	return res, nil
}

func (s *StringKeySerializer) Deserialize(data []byte) (common.Key, error) {
	raw := data[:s.Len]
	end := 0
	for end < len(raw) && raw[end] != 0 {
		end++
	}
	return StringKey(raw[:end]), nil
}

func (s *StringKeySerializer) Size() int {
	return s.Len
}

// ValueSerializer converts leaf values to and from their fixed size representation.
type ValueSerializer interface {
	Serialize(val interface{}) ([]byte, error)
	Deserialize([]byte) (interface{}, error)
	Size() int
}

type SlotPointerValueSerializer struct{}

func (s *SlotPointerValueSerializer) Serialize(val interface{}) ([]byte, error) {
	buf := bytes.Buffer{}
	if err := binary.Write(&buf, binary.BigEndian, val.(SlotPointer)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *SlotPointerValueSerializer) Deserialize(data []byte) (interface{}, error) {
	reader := bytes.NewReader(data)
	var val SlotPointer
	err := binary.Read(reader, binary.BigEndian, &val)
	return val, err
}

func (s *SlotPointerValueSerializer) Size() int {
	return 6
}
