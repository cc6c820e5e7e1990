// Package internal implements the typed value encoding of the store. Every
// stored value starts with a one byte type tag so that reading a key with the
// wrong typed getter is detected instead of misinterpreting bytes:
//
//	bool:       tag | 0 or 1
//	string:     tag | utf-8 bytes
//	int:        tag | int32 (little endian)
//	float:      tag | IEEE-754 float32 bits (little endian)
//	long:       tag | int64 (little endian)
//	string set: tag | count u32 | count x (len u32 | bytes)
package internal
