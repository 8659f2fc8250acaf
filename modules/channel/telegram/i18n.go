package telegram

import "github.com/flemzord/tgpt/internal/usage"

// texts is the set of user-facing strings for one bot language.
type texts struct {
	HelpIntro  string
	HelpFooter string
	HelpSource string

	HelpDescription    string
	ResetDescription   string
	StatsDescription   string
	ResendDescription  string
	ImageDescription   string
	ChatDescription    string
	OnboardDescription string

	Disallowed    string
	BudgetLimit   string
	NotSubscribed string
	RateLimited   string

	ResetDone     string
	ResendFailed  string
	ImageNoPrompt string
	ImageFail     string
	ChatFail      string

	StatsConversation [3]string // header, messages, tokens
	UsageToday        string
	UsageMonth        string
	StatsTokens       string
	StatsImages       string
	StatsTranscribe   [2]string // minutes, seconds
	StatsTotal        string
	StatsBudget       string
	Periods           map[usage.Period]string

	AskChatGPT        string
	AnswerWithChatGPT string
	Answer            string
	Loading           string
	Error             string
	TryAgain          string

	RequestSent      string
	RateButton       string
	TranscriptButton string
	NoTranscript     string
	TranscribeFail   string
	TranscriptReady  string
	AskSeller        string
	AskClient        string

	OnboardAskName  string
	OnboardAskAge   string // %s is the name
	OnboardBadAge   string
	OnboardTooYoung string
	OnboardDone     string
}

var catalogs = map[string]*texts{
	"en": {
		HelpIntro:  "I'm a ChatGPT bot, talk to me!",
		HelpFooter: "Send me a voice message or file and I'll transcribe it for you",
		HelpSource: "Open source at https://github.com/flemzord/tgpt",

		HelpDescription:    "Show help message",
		ResetDescription:   "Reset the conversation. Optionally pass high-level instructions (e.g. /reset You are a helpful assistant)",
		StatsDescription:   "Get your current usage statistics",
		ResendDescription:  "Resend the latest message",
		ImageDescription:   "Generate image from prompt (e.g. /image cat)",
		ChatDescription:    "Chat with the bot!",
		OnboardDescription: "Tell the bot about yourself",

		Disallowed:    "Sorry, you are not allowed to use this bot. You can check out the source code at https://github.com/flemzord/tgpt",
		BudgetLimit:   "Sorry, you have reached your usage limit.",
		NotSubscribed: "Please subscribe to %s to use this bot.",
		RateLimited:   "Too many requests, please slow down.",

		ResetDone:     "Done!",
		ResendFailed:  "You have nothing to resend",
		ImageNoPrompt: "Please provide a prompt! (e.g. /image cat)",
		ImageFail:     "Failed to generate image",
		ChatFail:      "Failed to get response",

		StatsConversation: [3]string{"Current conversation", "chat messages in history", "chat tokens in history"},
		UsageToday:        "Usage today",
		UsageMonth:        "Usage this month",
		StatsTokens:       "tokens",
		StatsImages:       "images generated",
		StatsTranscribe:   [2]string{"minutes and", "seconds transcribed"},
		StatsTotal:        "💰 For a total amount of $",
		StatsBudget:       "Your remaining budget",
		Periods: map[usage.Period]string{
			usage.PeriodDaily:   "for today",
			usage.PeriodMonthly: "for this month",
			usage.PeriodAllTime: "",
		},

		AskChatGPT:        "Ask ChatGPT",
		AnswerWithChatGPT: "Answer with ChatGPT",
		Answer:            "Answer",
		Loading:           "Loading...",
		Error:             "An error has occurred",
		TryAgain:          "Please try again in a while",

		RequestSent:      "request sent",
		RateButton:       "rate",
		TranscriptButton: "show transcript",
		NoTranscript:     "There is no transcript yet, send me a voice message first",
		TranscribeFail:   "Failed to transcribe audio",
		TranscriptReady:  "Transcription finished. What next?",
		AskSeller:        "What is the seller's name?",
		AskClient:        "What is the client's name?",

		OnboardAskName:  "Hi! What is your name?",
		OnboardAskAge:   "Thanks, %s! How old are you?",
		OnboardBadAge:   "Please send your age as a number.",
		OnboardTooYoung: "Sorry, you are too young to use this bot.",
		OnboardDone:     "Welcome aboard! Just send me a message to start chatting.",
	},
	"ru": {
		HelpIntro:  "Я бот ChatGPT, поговори со мной!",
		HelpFooter: "Отправь мне голосовое сообщение или файл, и я сделаю транскрипцию",
		HelpSource: "Исходный код: https://github.com/flemzord/tgpt",

		HelpDescription:    "Показать справку",
		ResetDescription:   "Начать беседу заново. Можно передать инструкции (например, /reset Ты полезный помощник)",
		StatsDescription:   "Статистика использования",
		ResendDescription:  "Повторить последний запрос",
		ImageDescription:   "Сгенерировать изображение (например, /image кот)",
		ChatDescription:    "Поговорить с ботом!",
		OnboardDescription: "Рассказать боту о себе",

		Disallowed:    "Извините, вам не разрешено пользоваться этим ботом.",
		BudgetLimit:   "Извините, вы исчерпали свой лимит.",
		NotSubscribed: "Подпишитесь на %s, чтобы пользоваться ботом.",
		RateLimited:   "Слишком много запросов, помедленнее.",

		ResetDone:     "Готово!",
		ResendFailed:  "Нечего повторять",
		ImageNoPrompt: "Укажите запрос! (например, /image кот)",
		ImageFail:     "Не удалось сгенерировать изображение",
		ChatFail:      "Не удалось получить ответ",

		StatsConversation: [3]string{"Текущая беседа", "сообщений в истории", "токенов в истории"},
		UsageToday:        "Использование за сегодня",
		UsageMonth:        "Использование за месяц",
		StatsTokens:       "токенов",
		StatsImages:       "изображений",
		StatsTranscribe:   [2]string{"минут и", "секунд транскрибировано"},
		StatsTotal:        "💰 На общую сумму $",
		StatsBudget:       "Ваш оставшийся бюджет",
		Periods: map[usage.Period]string{
			usage.PeriodDaily:   "на сегодня",
			usage.PeriodMonthly: "на этот месяц",
			usage.PeriodAllTime: "",
		},

		AskChatGPT:        "Спросить ChatGPT",
		AnswerWithChatGPT: "Ответить с помощью ChatGPT",
		Answer:            "Ответ",
		Loading:           "Загрузка...",
		Error:             "Произошла ошибка",
		TryAgain:          "Попробуйте позже",

		RequestSent:      "запрос отправлен",
		RateButton:       "оценить",
		TranscriptButton: "посмотреть транскрипт",
		NoTranscript:     "Транскрипта пока нет, сначала отправьте голосовое сообщение",
		TranscribeFail:   "Не удалось распознать аудио",
		TranscriptReady:  "Транскрибация завершена. Что дальше?",
		AskSeller:        "Как зовут продавца?",
		AskClient:        "Как зовут клиента?",

		OnboardAskName:  "Привет! Как тебя зовут?",
		OnboardAskAge:   "Спасибо, %s! Сколько тебе лет?",
		OnboardBadAge:   "Пришли возраст числом.",
		OnboardTooYoung: "Извини, ты слишком молод для этого бота.",
		OnboardDone:     "Добро пожаловать! Просто напиши сообщение, чтобы начать.",
	},
}

// textsFor returns the catalog of lang, falling back to English.
func textsFor(lang string) *texts {
	if t, ok := catalogs[lang]; ok {
		return t
	}
	return catalogs["en"]
}

// defaultRatePrompt asks the model to evaluate a sales call transcript.
// The placeholders are the transcript, the seller and the client.
const defaultRatePrompt = `Below is the transcript of a conversation between a seller named %[2]s and a client named %[3]s.
Rate the seller's performance from 1 to 10. List what went well, what went wrong, and give three concrete suggestions for the next call.

Transcript:
%[1]s`
