package types

import "bytes"

// Comparable é a interface que todas as chaves devem implementar
type Comparable interface {
	Compare(other Comparable) int // Retorna -1 se <, 0 se ==, 1 se >
}

// ByteKey é uma chave de bytes crus, ordenada lexicograficamente.
// É a única implementação de Comparable usada pelo domínio transacional:
// chaves aqui são sequências de bytes opacas, não valores tipados de schema.
type ByteKey []byte

func (k ByteKey) Compare(other Comparable) int {
	o := other.(ByteKey)
	return bytes.Compare(k, o)
}

func (k ByteKey) String() string {
	return string(k)
}
