package freelist

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/vkngwrapper/arsenal/blockalloc"
)

const chunkMagic uint32 = 0x7F84E666

// chunkHeader occupies the first ChunkInfoBlocks blocks of every chunk
type chunkHeader struct {
	magic     uint32
	index     uint32
	blockSize uint32
	batchSize uint32
}

const chunkHeaderSize = int(unsafe.Sizeof(chunkHeader{}))

// link identifies a free block by chunk index and block index within the chunk. Block indices are
// stored one higher than their value so that the zero link can mark the end of the list. Free
// blocks hold the link to the next free block in their first 8 bytes; raw memory never holds a
// Go pointer.
type link uint64

const noLink link = 0

func makeLink(chunk, block int) link {
	return link(uint64(chunk)<<32 | uint64(block+1))
}

func (l link) indices() (chunk, block int) {
	return int(uint64(l) >> 32), int(uint32(l)) - 1
}

func writeChunkHeader(chunk blockalloc.Blk, index, blockSize, batchSize int) {
	header := (*chunkHeader)(chunk.Ptr)
	header.magic = chunkMagic
	header.index = uint32(index)
	header.blockSize = uint32(blockSize)
	header.batchSize = uint32(batchSize)
}

func validateChunkHeader(chunk blockalloc.Blk, index, blockSize, batchSize int) error {
	header := (*chunkHeader)(chunk.Ptr)
	if header.magic != chunkMagic {
		return errors.Errorf("chunk %d at %#x has a corrupted header: magic value %#x", index, chunk.Addr(), header.magic)
	}

	if int(header.index) != index || int(header.blockSize) != blockSize || int(header.batchSize) != batchSize {
		return errors.Errorf("chunk %d at %#x has a header describing chunk %d with %d blocks of %d bytes", index, chunk.Addr(), header.index, header.batchSize, header.blockSize)
	}

	return nil
}
