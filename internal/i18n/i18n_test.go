package i18n

import (
	"context"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "ErrInvalidCredentials")
	if got != "Invalid username or password." {
		t.Errorf("T(ErrInvalidCredentials) = %q", got)
	}

	got = T(ctx, "ExamSubmitted")
	if got != "Your exam was submitted." {
		t.Errorf("T(ExamSubmitted) = %q", got)
	}
}

func TestTranslateArabic(t *testing.T) {
	ctx := initLang(t, "ar")

	got := T(ctx, "ErrInvalidCredentials")
	if got != "اسم المستخدم أو كلمة المرور غير صحيحة." {
		t.Errorf("T(ErrInvalidCredentials) = %q", got)
	}

	got = T(ctx, "ExamSubmitted")
	if got != "تم تسليم امتحانك." {
		t.Errorf("T(ExamSubmitted) = %q", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "QuestionsImported", 1)
	if got1 != "1 question imported." {
		t.Errorf("Tp(QuestionsImported, 1) = %q", got1)
	}

	got5 := Tp(ctx, "QuestionsImported", 5)
	if got5 != "5 questions imported." {
		t.Errorf("Tp(QuestionsImported, 5) = %q", got5)
	}
}

func TestArabicPluralForms(t *testing.T) {
	ctx := initLang(t, "ar")

	got := Tp(ctx, "QuestionsImported", 1)
	if got != "تم استيراد سؤال واحد." {
		t.Errorf("Tp(QuestionsImported, 1) = %q", got)
	}

	got = Tp(ctx, "QuestionsImported", 2)
	if got != "تم استيراد سؤالين." {
		t.Errorf("Tp(QuestionsImported, 2) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}
