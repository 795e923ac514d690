package sbootseed

import (
	"errors"
	"math/big"
)

// Supplier bootloader verification key, 2048 bits, lifted from the
// public-key blob at offset 0x136 of the SBOOT image.
const (
	supplierModulusHex = "de5a5615fdda3b76b4ecd8754228885e7bf11fdd6c8c18ac24230f7f770006cf" +
		"e60465384e6a5ab4daa3009abc65bff2abb1da1428ce7a925366a14833dcd181" +
		"83bad61b2c66f0d8b9c4c90bf27fe9d1c55bf2830306a13d4559df60783f5809" +
		"547ffd364dbccea7a7c2fc32a0357ceba3e932abcac6bd6398894a1a22f63bdc" +
		"45b5da8b3c4e80f8c097ca7ffd18ff6c78c81e94c016c080ee6c5322e1aeb59d" +
		"2123dce1e4dd20d0f1cdb017326b4fd813c060e8d2acd62e703341784dca6676" +
		"32233de57db820f149964b3f4f0c785c39e2534a7ae36fd115b9f06457822f8a" +
		"9b7ce7533777a4fb03610d6b4018ab332be4e7ad2f4ac193040e5a037417bc53"

	supplierPublicExponent = 65537
)

// SupplierKey returns the compiled-in public key of the supplier
// bootloader, the default search target. Each call returns an independent
// copy.
func SupplierKey() PublicKey {
	key, err := ParseKey(supplierModulusHex, supplierPublicExponent)
	if err != nil {
		panic("sbootseed: built-in supplier key: " + err.Error())
	}
	return key
}

// ParseKey builds a public key from a hex-encoded modulus and an exponent.
func ParseKey(modulusHex string, exponent uint64) (PublicKey, error) {
	n, ok := new(big.Int).SetString(modulusHex, 16)
	if !ok || n.Sign() <= 0 {
		return PublicKey{}, errors.New("sbootseed: modulus is not valid hex")
	}
	if exponent < 2 {
		return PublicKey{}, errors.New("sbootseed: exponent must be at least 2")
	}
	return PublicKey{N: n, E: new(big.Int).SetUint64(exponent)}, nil
}
