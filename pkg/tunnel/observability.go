package tunnel

import qerrors "github.com/cryprq/cryprq/internal/errors"

func isProtocolError(err error) bool {
	if err == nil {
		return false
	}

	var perr *qerrors.ProtocolError
	if qerrors.As(err, &perr) {
		return true
	}

	return qerrors.Is(err, qerrors.ErrInvalidRecord) ||
		qerrors.Is(err, qerrors.ErrUnsupportedVersion) ||
		qerrors.Is(err, qerrors.ErrUnsupportedCipherSuite) ||
		qerrors.Is(err, qerrors.ErrHandshakeFailed) ||
		qerrors.Is(err, qerrors.ErrInvalidPeerIdentity) ||
		qerrors.Is(err, qerrors.ErrMessageTooLarge)
}
