package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes an Object to CBOR bytes.
func Marshal(o *Object) ([]byte, error) {
	return cborEncMode.Marshal(o)
}

// Unmarshal deserializes an Object from CBOR bytes.
func Unmarshal(data []byte) (*Object, error) {
	var o Object
	if err := cbor.Unmarshal(data, &o); err != nil {
		return nil, errors.Wrap(err, "wire: unmarshal object")
	}
	if o.Version != Version {
		return nil, errors.Errorf("wire: unsupported object version %d", o.Version)
	}
	return &o, nil
}

// WriteFile encodes o to path.
func WriteFile(fs afero.Fs, path string, o *Object) error {
	data, err := Marshal(o)
	if err != nil {
		return errors.Wrap(err, "wire: marshal object")
	}
	return errors.Wrapf(afero.WriteFile(fs, path, data, 0o644), "wire: write %s", path)
}

// ReadFile decodes the object stored at path.
func ReadFile(fs afero.Fs, path string) (*Object, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "wire: read %s", path)
	}
	return Unmarshal(data)
}
