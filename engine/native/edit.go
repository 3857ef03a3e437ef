package native

import (
	"bytes"
	"strings"

	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine"
	"github.com/gpgme-go/gpgme/engine/status"
)

// Prompts of the key editor.
const (
	promptCommand    = "keyedit.prompt"
	promptSave       = "keyedit.save.okay"
	promptOwnerTrust = "edit_ownertrust.value"
	promptUltimate   = "edit_ownertrust.set_ultimate.okay"
)

// keyEdit holds the changes of an edit session until they are saved.
type keyEdit struct {
	trust    int
	disabled *bool
}

func (k *keyEdit) modified() bool {
	return k.trust != 0 || k.disabled != nil
}

// editKey runs a reduced gpg key editor: trust, enable, disable, save and
// quit.
func (s *session) editKey(op *engine.Operation) error {
	if len(op.Patterns) != 1 {
		return s.failure(constants.ErrInvValue, "edit needs exactly one key")
	}
	found := s.eng.keys.Find(op.Patterns, false)
	switch len(found) {
	case 0:
		return s.failure(constants.ErrNoPubkey, "key %s not found", op.Patterns[0])
	case 1:
	default:
		return s.failure(constants.ErrAmbiguousName, "key %s is ambiguous", op.Patterns[0])
	}
	e := found[0]
	fpr := fingerprint(e.PrimaryKey)

	if op.Output != nil {
		var listing bytes.Buffer
		s.writeListing(&listing, e, &engine.Operation{KeyListMode: constants.KeyListModeLocal})
		if _, err := op.Output.Write(listing.Bytes()); err != nil {
			return s.failure(constants.ErrGeneral, "unable to write key: %v", err)
		}
	}

	var edit keyEdit
	for {
		cmd, err := s.prompt(status.GetLine, promptCommand)
		if err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(cmd)) {
		case "trust":
			trust, err := s.askOwnerTrust()
			if err != nil {
				return err
			}
			if trust != 0 {
				edit.trust = trust
			}
		case "disable":
			v := true
			edit.disabled = &v
		case "enable":
			v := false
			edit.disabled = &v
		case "save":
			return s.applyEdit(fpr, &edit)
		case "quit", "q":
			if !edit.modified() {
				return nil
			}
			ok, err := s.confirm(promptSave)
			if err != nil {
				return err
			}
			if ok {
				return s.applyEdit(fpr, &edit)
			}
			return nil
		}
	}
}

// askOwnerTrust returns the chosen owner trust, or 0 when the user went
// back to the main menu.
func (s *session) askOwnerTrust() (int, error) {
	for {
		answer, err := s.prompt(status.GetLine, promptOwnerTrust)
		if err != nil {
			return 0, err
		}
		switch v := strings.TrimSpace(answer); v {
		case "1", "2", "3", "4":
			return int(v[0] - '0'), nil
		case "5":
			ok, err := s.confirm(promptUltimate)
			if err != nil || !ok {
				return 0, err
			}
			return constants.TrustUltimate, nil
		case "m", "":
			return 0, nil
		}
	}
}

// prompt asks a question and acknowledges the answer with GOT_IT.
func (s *session) prompt(k status.Keyword, name string) (string, error) {
	answer, err := s.ask(k, name)
	if err != nil {
		return "", err
	}
	s.emit(status.GotIt)
	return answer, nil
}

func (s *session) confirm(name string) (bool, error) {
	answer, err := s.prompt(status.GetBool, name)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func (s *session) applyEdit(fpr string, edit *keyEdit) error {
	if edit.trust != 0 {
		if err := s.eng.keys.SetOwnerTrust(fpr, edit.trust); err != nil {
			return s.failure(constants.ErrGeneral, "unable to save owner trust: %v", err)
		}
	}
	if edit.disabled != nil {
		if err := s.eng.keys.SetDisabled(fpr, *edit.disabled); err != nil {
			return s.failure(constants.ErrGeneral, "unable to save key state: %v", err)
		}
	}
	return nil
}
