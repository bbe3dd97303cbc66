package codec

// PackFinalizedDatum renders a finalized stream datum into the canonical
// encoding Merkle leaves are hashed over: a length-prefixed key, the
// finalization timestamp, then the finalized payload verbatim.
func PackFinalizedDatum(dataKey string, timestamp int64, finalized []byte) []byte {
	b := NewBuilder()
	b.WriteUint32(uint32(len(dataKey)))
	b.WriteBytes([]byte(dataKey))
	b.WriteUint64(uint64(timestamp))
	b.WriteBytes(finalized)
	return b.Bytes()
}
