package llamacpp

import (
	"unsafe"

	"github.com/hybridgroup/yzma/pkg/llama"
)

func batchClear(batch *llama.Batch) {
	batch.NTokens = 0
}

// batchAdd writes one token into the batch arrays allocated by BatchInit.
func batchAdd(batch *llama.Batch, token llama.Token, pos llama.Pos, seqIDs []llama.SeqId, logits bool) {
	i := uintptr(batch.NTokens)

	*(*llama.Token)(unsafe.Add(unsafe.Pointer(batch.Token), i*unsafe.Sizeof(llama.Token(0)))) = token
	*(*llama.Pos)(unsafe.Add(unsafe.Pointer(batch.Pos), i*unsafe.Sizeof(llama.Pos(0)))) = pos
	*(*int32)(unsafe.Add(unsafe.Pointer(batch.NSeqId), i*unsafe.Sizeof(int32(0)))) = int32(len(seqIDs))

	seqs := *(**llama.SeqId)(unsafe.Add(unsafe.Pointer(batch.SeqId), i*unsafe.Sizeof(uintptr(0))))
	if seqs != nil {
		for j, sid := range seqIDs {
			*(*llama.SeqId)(unsafe.Add(unsafe.Pointer(seqs), uintptr(j)*unsafe.Sizeof(llama.SeqId(0)))) = sid
		}
	}

	var l int8
	if logits {
		l = 1
	}
	*(*int8)(unsafe.Add(unsafe.Pointer(batch.Logits), i*unsafe.Sizeof(int8(0)))) = l

	batch.NTokens++
}
