package fold

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	assert.Equal(t, "relatorio de debito", String("Relatório de Débito"))
	assert.Equal(t, "comunicacao", String("COMUNICAÇÃO"))
	assert.Equal(t, "intimacao tabeliao", String("Intimação Tabelião"))
}

func TestContainsAny(t *testing.T) {
	kw, ok := ContainsAny("Certidão de Protesto - Cartório 2º Ofício", []string{"efetivado", "cartório"})
	assert.True(t, ok)
	assert.Equal(t, "cartório", kw)

	_, ok = ContainsAny("documento em branco", []string{"assinado", "testemunha"})
	assert.False(t, ok)

	_, ok = ContainsAny("qualquer", []string{""})
	assert.False(t, ok)
}
