package domain

import "context"

// Messenger доставляет ответы пользователю.
type Messenger interface {
	Send(ctx context.Context, peerID int64, text, attachment string) error
}

// PhotoTransport скачивает вложения и загружает картинки для ответов.
type PhotoTransport interface {
	DownloadPhoto(ctx context.Context, photo Photo) ([]byte, error)
	UploadMessagePhoto(ctx context.Context, peerID int64, img Image) (string, error)
}

// UserDirectory ищет пользователя по короткому имени.
type UserDirectory interface {
	LookupUser(ctx context.Context, screenName string) (*User, error)
}

// Platform объединяет всё, что поведения используют у платформы.
type Platform interface {
	Messenger
	PhotoTransport
	UserDirectory
}

// Hasher вычисляет перцептивный отпечаток картинки.
type Hasher interface {
	Hash(image []byte) (Fingerprint, error)
}

// ProgressStore предоставляет атомарные операции над множествами и хэшами общего KV-хранилища.
// Каждая операция атомарна сама по себе; две отдельные операции вместе не атомарны.
type ProgressStore interface {
	// SetAdd добавляет member и возвращает размер множества после добавления.
	SetAdd(ctx context.Context, set, member string) (int64, error)
	// SetAddNew добавляет member и сообщает, был ли он добавлен впервые.
	SetAddNew(ctx context.Context, set, member string) (bool, error)
	SetContains(ctx context.Context, set, member string) (bool, error)
	// SetsAddAndCountContaining в одной транзакции добавляет member во все addTo
	// и считает, сколько множеств из countIn теперь его содержат.
	SetsAddAndCountContaining(ctx context.Context, addTo, countIn []string, member string) (int, error)
	// HashIncr увеличивает поле на delta; delta = 0 читает или инициализирует нулём.
	HashIncr(ctx context.Context, hash, field string, delta int64) (int64, error)
	HashSet(ctx context.Context, hash, field string, value int64) error
	// HashAdvance увеличивает поле на 1, только если его текущее значение равно from.
	HashAdvance(ctx context.Context, hash, field string, from int64) (bool, int64, error)
	SetsLen(ctx context.Context, sets []string) ([]int64, error)
	Ping(ctx context.Context) error
}

// Behavior реализует один из игровых режимов, выбираемый при старте.
type Behavior interface {
	Name() string
	Handle(ctx context.Context, msg Message) error
}
