package store

import "github.com/annel0/lightstage/internal/scene"

// DisplayStore состояние экрана: последний принятый снимок.
//
// Принятие целиком заменяет снимок (last-write-wins). Внутри одной сессии
// отправителя снимок с номером не новее уже принятого отбрасывается,
// запоздавшее сообщение не откатывает экран назад.
type DisplayStore struct {
	targetID string
	rendered *scene.Scene
	adopted  bool

	source string
	seq    uint64
}

// NewDisplayStore создаёт хранилище экрана. Пустой targetID означает
// экран без идентификатора: он принимает только TargetAll.
func NewDisplayStore(targetID string) *DisplayStore {
	return &DisplayStore{targetID: targetID, rendered: scene.Default()}
}

// TargetID идентификатор экрана.
func (ds *DisplayStore) TargetID() string { return ds.targetID }

// RequestTarget цель для REQUEST_LIVE: свой id или TargetAll.
func (ds *DisplayStore) RequestTarget() string {
	if ds.targetID == "" {
		return TargetAll
	}
	return ds.targetID
}

// Accepts адресовано ли сообщение этому экрану.
func (ds *DisplayStore) Accepts(target string) bool {
	if target == TargetAll {
		return true
	}
	return ds.targetID != "" && target == ds.targetID
}

// Adopt принимает снимок. seq == 0 означает сообщение без нумерации,
// оно принимается всегда. Возвращает false для nil или устаревшего снимка.
func (ds *DisplayStore) Adopt(source string, seq uint64, snap *scene.Scene) bool {
	if snap == nil {
		return false
	}
	if seq != 0 && source != "" && source == ds.source && seq <= ds.seq {
		return false
	}
	if source != ds.source {
		ds.source = source
		ds.seq = 0
	}
	if seq > ds.seq {
		ds.seq = seq
	}
	ds.rendered = snap
	ds.adopted = true
	return true
}

// Rendered текущий отображаемый снимок. Вызывающий не должен его изменять.
func (ds *DisplayStore) Rendered() *scene.Scene { return ds.rendered }

// Adopted принят ли хотя бы один LIVE_STATE.
func (ds *DisplayStore) Adopted() bool { return ds.adopted }
