package zatca

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"
)

// InvoiceHasher calcula el invoiceHash de un XML UBL: se eliminan ext:UBLExtensions,
// cac:Signature y la referencia QR, se canonicaliza (C14N 1.0) y se aplica SHA-256.
type InvoiceHasher struct{}

// NewInvoiceHasher crea el hasher.
func NewInvoiceHasher() *InvoiceHasher { return &InvoiceHasher{} }

// Hash devuelve el SHA-256 en base64 del XML sin firma ni QR.
func (h *InvoiceHasher) Hash(xmlBytes []byte) (string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return "", fmt.Errorf("zatca: parsear XML: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return "", fmt.Errorf("zatca: documento sin raíz")
	}

	// La declaración XML no forma parte de la forma canónica.
	for _, tok := range append([]etree.Token(nil), doc.Child...) {
		if _, ok := tok.(*etree.ProcInst); ok {
			doc.RemoveChild(tok)
		}
	}

	stripped := make([]etree.Token, 0, len(root.Child))
	for _, tok := range root.Child {
		el, ok := tok.(*etree.Element)
		if !ok || !excludedFromHash(el) {
			stripped = append(stripped, tok)
			continue
		}
		// Se descarta también la indentación que precedía al elemento.
		if n := len(stripped); n > 0 {
			if cd, ok := stripped[n-1].(*etree.CharData); ok && strings.TrimSpace(cd.Data) == "" {
				stripped = stripped[:n-1]
			}
		}
	}
	root.Child = stripped

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return "", fmt.Errorf("zatca: serializar XML: %w", err)
	}
	canonical, err := canonicalizeXML(buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("zatca: canonicalizar XML: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

func excludedFromHash(el *etree.Element) bool {
	switch localName(el) {
	case "UBLExtensions", "Signature":
		return true
	case "AdditionalDocumentReference":
		for _, c := range el.ChildElements() {
			if localName(c) == "ID" && strings.TrimSpace(c.Text()) == "QR" {
				return true
			}
		}
	}
	return false
}

func localName(el *etree.Element) string {
	if i := strings.LastIndexByte(el.Tag, ':'); i >= 0 {
		return el.Tag[i+1:]
	}
	return el.Tag
}

func canonicalizeXML(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}
