package cvc

import (
	"errors"
	"math/big"
	"time"

	"golang.org/x/crypto/cryptobyte"
	casn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/aneury1/scsh-scripts/internal/domain"
)

var errMalformed = errors.New("malformed structure")

// outerTag wraps the optional authentication block of a request.
var outerTag = casn1.Tag(0).Constructed().ContextSpecific()

// Codec encodes and decodes certificates and certificate requests as
// self-delimiting DER structures.
type Codec struct{}

// EncodeCertificate serializes the certificate fields and fills in Raw
// and Body. Signature must already cover the encoded body.
func EncodeCertificate(cert *domain.Certificate) error {
	body, err := encodeCertificateBody(cert)
	if err != nil {
		return err
	}
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(casn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddBytes(body)
		addOctetString(b, cert.Signature)
	})
	raw, err := b.Bytes()
	if err != nil {
		return err
	}
	cert.Body = body
	cert.Raw = raw
	return nil
}

func encodeCertificateBody(cert *domain.Certificate) ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(casn1.SEQUENCE, func(b *cryptobyte.Builder) {
		addUTF8(b, cert.CAR)
		addUTF8(b, cert.CHR)
		addPublicKey(b, cert.PublicKey)
		b.AddASN1GeneralizedTime(cert.NotBefore.UTC())
		b.AddASN1GeneralizedTime(cert.NotAfter.UTC())
	})
	return b.Bytes()
}

func (Codec) DecodeCertificate(raw []byte) (*domain.Certificate, error) {
	input := cryptobyte.String(raw)
	var outer cryptobyte.String
	if !input.ReadASN1(&outer, casn1.SEQUENCE) || !input.Empty() {
		return nil, errMalformed
	}
	var bodyElem cryptobyte.String
	if !outer.ReadASN1Element(&bodyElem, casn1.SEQUENCE) {
		return nil, errMalformed
	}
	body := append([]byte(nil), bodyElem...)

	var fields cryptobyte.String
	bodyS := cryptobyte.String(body)
	if !bodyS.ReadASN1(&fields, casn1.SEQUENCE) {
		return nil, errMalformed
	}
	cert := &domain.Certificate{Raw: append([]byte(nil), raw...), Body: body}
	var err error
	if cert.CAR, err = readUTF8(&fields); err != nil {
		return nil, err
	}
	if cert.CHR, err = readUTF8(&fields); err != nil {
		return nil, err
	}
	if cert.PublicKey, err = readPublicKey(&fields); err != nil {
		return nil, err
	}
	var notBefore, notAfter time.Time
	if !fields.ReadASN1GeneralizedTime(&notBefore) || !fields.ReadASN1GeneralizedTime(&notAfter) {
		return nil, errMalformed
	}
	cert.NotBefore, cert.NotAfter = notBefore, notAfter

	var sig cryptobyte.String
	if !outer.ReadASN1(&sig, casn1.OCTET_STRING) || !outer.Empty() {
		return nil, errMalformed
	}
	cert.Signature = append([]byte(nil), sig...)
	return cert, nil
}

// EncodeRequest serializes a certificate request. InnerSignature must
// cover Body; for authenticated requests OuterSignature must cover the
// full inner structure (OuterBody).
func EncodeRequest(req *domain.CertificateRequest) error {
	inner, err := encodeRequestInner(req)
	if err != nil {
		return err
	}
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(casn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddBytes(inner)
		if req.OuterCAR != "" {
			b.AddASN1(outerTag, func(b *cryptobyte.Builder) {
				addUTF8(b, req.OuterCAR)
				addOctetString(b, req.OuterSignature)
			})
		}
	})
	raw, err := b.Bytes()
	if err != nil {
		return err
	}
	req.OuterBody = inner
	req.Raw = raw
	return nil
}

// EncodeRequestBody serializes only the inner signed portion, so the
// caller can compute the inner signature before EncodeRequest.
func EncodeRequestBody(req *domain.CertificateRequest) ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(casn1.SEQUENCE, func(b *cryptobyte.Builder) {
		addUTF8(b, req.CHR)
		addPublicKey(b, req.PublicKey)
	})
	return b.Bytes()
}

// EncodeRequestInner serializes the body plus inner signature, the bytes
// an outer signature covers.
func EncodeRequestInner(req *domain.CertificateRequest) ([]byte, error) {
	return encodeRequestInner(req)
}

func encodeRequestInner(req *domain.CertificateRequest) ([]byte, error) {
	body, err := EncodeRequestBody(req)
	if err != nil {
		return nil, err
	}
	req.Body = body
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(casn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddBytes(body)
		addOctetString(b, req.InnerSignature)
	})
	return b.Bytes()
}

func (Codec) DecodeRequest(raw []byte) (*domain.CertificateRequest, error) {
	input := cryptobyte.String(raw)
	var outer cryptobyte.String
	if !input.ReadASN1(&outer, casn1.SEQUENCE) || !input.Empty() {
		return nil, errMalformed
	}
	var innerElem cryptobyte.String
	if !outer.ReadASN1Element(&innerElem, casn1.SEQUENCE) {
		return nil, errMalformed
	}
	outerBody := append([]byte(nil), innerElem...)

	var inner cryptobyte.String
	innerS := cryptobyte.String(outerBody)
	if !innerS.ReadASN1(&inner, casn1.SEQUENCE) {
		return nil, errMalformed
	}
	var bodyElem cryptobyte.String
	if !inner.ReadASN1Element(&bodyElem, casn1.SEQUENCE) {
		return nil, errMalformed
	}
	body := append([]byte(nil), bodyElem...)

	var fields cryptobyte.String
	bodyS := cryptobyte.String(body)
	if !bodyS.ReadASN1(&fields, casn1.SEQUENCE) {
		return nil, errMalformed
	}
	req := &domain.CertificateRequest{
		Raw:       append([]byte(nil), raw...),
		Body:      body,
		OuterBody: outerBody,
	}
	var err error
	if req.CHR, err = readUTF8(&fields); err != nil {
		return nil, err
	}
	if req.PublicKey, err = readPublicKey(&fields); err != nil {
		return nil, err
	}
	var innerSig cryptobyte.String
	if !inner.ReadASN1(&innerSig, casn1.OCTET_STRING) {
		return nil, errMalformed
	}
	req.InnerSignature = append([]byte(nil), innerSig...)

	var auth cryptobyte.String
	var hasAuth bool
	if !outer.ReadOptionalASN1(&auth, &hasAuth, outerTag) || !outer.Empty() {
		return nil, errMalformed
	}
	if hasAuth {
		if req.OuterCAR, err = readUTF8(&auth); err != nil {
			return nil, err
		}
		var outerSig cryptobyte.String
		if !auth.ReadASN1(&outerSig, casn1.OCTET_STRING) || !auth.Empty() {
			return nil, errMalformed
		}
		req.OuterSignature = append([]byte(nil), outerSig...)
	}
	return req, nil
}

func addPublicKey(b *cryptobyte.Builder, pk domain.PublicKeyInfo) {
	b.AddASN1(casn1.SEQUENCE, func(b *cryptobyte.Builder) {
		addUTF8(b, string(pk.Algorithm))
		b.AddASN1BigInt(pk.Params.Prime)
		b.AddASN1BigInt(pk.Params.A)
		b.AddASN1BigInt(pk.Params.B)
		b.AddASN1BigInt(pk.Params.BaseX)
		b.AddASN1BigInt(pk.Params.BaseY)
		b.AddASN1BigInt(pk.Params.Order)
		b.AddASN1Int64(int64(pk.Params.Cofactor))
		b.AddASN1BigInt(pk.X)
		b.AddASN1BigInt(pk.Y)
	})
}

func readPublicKey(s *cryptobyte.String) (domain.PublicKeyInfo, error) {
	var pk domain.PublicKeyInfo
	var seq cryptobyte.String
	if !s.ReadASN1(&seq, casn1.SEQUENCE) {
		return pk, errMalformed
	}
	alg, err := readUTF8(&seq)
	if err != nil {
		return pk, err
	}
	pk.Algorithm = domain.PublicKeyAlgorithm(alg)

	ints := []**big.Int{
		&pk.Params.Prime, &pk.Params.A, &pk.Params.B,
		&pk.Params.BaseX, &pk.Params.BaseY, &pk.Params.Order,
	}
	for _, out := range ints {
		v := new(big.Int)
		if !seq.ReadASN1Integer(v) {
			return pk, errMalformed
		}
		*out = v
	}
	var cofactor int64
	if !seq.ReadASN1Integer(&cofactor) {
		return pk, errMalformed
	}
	pk.Params.Cofactor = int(cofactor)

	x, y := new(big.Int), new(big.Int)
	if !seq.ReadASN1Integer(x) || !seq.ReadASN1Integer(y) || !seq.Empty() {
		return pk, errMalformed
	}
	pk.X, pk.Y = x, y
	return pk, nil
}

func addUTF8(b *cryptobyte.Builder, s string) {
	b.AddASN1(casn1.UTF8String, func(b *cryptobyte.Builder) {
		b.AddBytes([]byte(s))
	})
}

func readUTF8(s *cryptobyte.String) (string, error) {
	var v cryptobyte.String
	if !s.ReadASN1(&v, casn1.UTF8String) {
		return "", errMalformed
	}
	return string(v), nil
}

func addOctetString(b *cryptobyte.Builder, v []byte) {
	b.AddASN1(casn1.OCTET_STRING, func(b *cryptobyte.Builder) {
		b.AddBytes(v)
	})
}
