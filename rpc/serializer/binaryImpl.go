package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/gridkv/gridkv/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey   byte = 1 << 0
	hasValue byte = 1 << 1
	hasOk    byte = 1 << 2
	hasErr   byte = 1 << 3
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	totalSize := b.sizeBytes(msg)
	result := make([]byte, totalSize)

	// Write message type
	result[0] = byte(msg.MsgType)

	// Initialize flags byte
	var flags byte = 0

	// Set position for writing
	pos := 2 // Start after MsgType and flags

	// Handle Key
	if msg.Key != "" {
		flags |= hasKey
		keyBytes := []byte(msg.Key)
		keyLen := len(keyBytes)

		// Write key length
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(keyLen))
		pos += 4

		// Write key data
		copy(result[pos:pos+keyLen], keyBytes)
		pos += keyLen
	}

	// Handle Value
	if msg.Value != nil {
		flags |= hasValue
		valueLen := len(msg.Value)

		// Write value length
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(valueLen))
		pos += 4

		// Write value data
		if valueLen > 0 {
			copy(result[pos:pos+valueLen], msg.Value)
			pos += valueLen
		}
	}

	// Handle Ok
	if msg.Ok {
		flags |= hasOk
		result[pos] = 1
		pos += 1
	}

	// Handle Err
	if msg.Err != "" {
		flags |= hasErr
		errBytes := []byte(msg.Err)
		errLen := len(errBytes)

		// Write error length
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(errLen))
		pos += 4

		// Write error data
		copy(result[pos:pos+errLen], errBytes)
		pos += errLen
	}

	// Set flags byte after knowing which fields are present
	result[1] = flags

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	if len(data) < 2 {
		return fmt.Errorf("message too short: %d bytes", len(data))
	}

	// Reset the target message
	*msg = common.Message{}

	// Read message type and flags
	msg.MsgType = common.MessageType(data[0])
	flags := data[1]
	pos := 2

	// readBlock reads a length-prefixed byte block at the current position
	readBlock := func() ([]byte, error) {
		if pos+4 > len(data) {
			return nil, fmt.Errorf("truncated length prefix at offset %d", pos)
		}
		blockLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if pos+blockLen > len(data) {
			return nil, fmt.Errorf("truncated block of %d bytes at offset %d", blockLen, pos)
		}
		block := data[pos : pos+blockLen]
		pos += blockLen
		return block, nil
	}

	// Handle Key
	if flags&hasKey != 0 {
		block, err := readBlock()
		if err != nil {
			return err
		}
		msg.Key = string(block)
	}

	// Handle Value
	if flags&hasValue != 0 {
		block, err := readBlock()
		if err != nil {
			return err
		}
		// Copy so the message does not alias the read buffer
		msg.Value = append([]byte(nil), block...)
	}

	// Handle Ok
	if flags&hasOk != 0 {
		if pos+1 > len(data) {
			return fmt.Errorf("truncated ok flag at offset %d", pos)
		}
		msg.Ok = data[pos] == 1
		pos += 1
	}

	// Handle Err
	if flags&hasErr != 0 {
		block, err := readBlock()
		if err != nil {
			return err
		}
		msg.Err = string(block)
	}

	return nil
}

// sizeBytes calculates the number of bytes needed to serialize the message
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := 2 // MsgType + flags

	if msg.Key != "" {
		size += 4 + len(msg.Key)
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Ok {
		size += 1
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}

	return size
}
