package analysis

// Problem type names produced by the classifier.
const (
	ProblemPlumbing     = "plumbing"
	ProblemElectrical   = "electrical"
	ProblemHeating      = "heating"
	ProblemAppliance    = "appliance"
	ProblemLocksmith    = "locksmith"
	ProblemConstruction = "construction"
	ProblemGeneral      = "general"
)

// Field names a complete problem description must cover.
const (
	FieldDescription = "description"
	FieldAddress     = "address"
	FieldTiming      = "timing"
)

// categoryLexicon maps problem types to their keyword sets. Bulgarian terms
// come first; common English equivalents are kept for mixed-language chats.
var categoryLexicon = map[string][]string{
	ProblemPlumbing: {
		"течка", "тече", "теч", "вода", "тръба", "тръби", "канал", "канализация",
		"сифон", "кран", "чешма", "бойлер", "мивка", "тоалетна", "казанче",
		"запушен", "запушена", "наводнение", "водопровод",
		"leak", "pipe", "water", "plumbing", "drain", "faucet", "toilet",
	},
	ProblemElectrical: {
		"ток", "токов", "контакт", "контакти", "ключ", "осветление", "лампа",
		"лампи", "кабел", "кабели", "табло", "бушон", "бушони", "прекъсвач",
		"искри", "изгоря", "електричество", "инсталация",
		"power", "electric", "electrical", "socket", "outlet", "wiring", "breaker",
	},
	ProblemHeating: {
		"парно", "отопление", "радиатор", "радиатори", "котел", "климатик",
		"топла", "студено", "градуси", "термостат", "конвектор",
		"heating", "radiator", "boiler", "thermostat", "ac", "aircon",
	},
	ProblemAppliance: {
		"пералня", "съдомиялна", "хладилник", "фурна", "печка", "аспиратор",
		"сушилня", "микровълнова", "уред", "уреда", "ремонт",
		"washer", "dishwasher", "fridge", "oven", "appliance", "dryer",
	},
	ProblemLocksmith: {
		"ключалка", "брава", "врата", "заключен", "заключена", "заключих",
		"ключ", "патрон", "секретен",
		"lock", "locked", "locksmith", "key", "door",
	},
	ProblemConstruction: {
		"ремонт", "мазилка", "шпакловка", "боядисване", "боя", "плочки",
		"фаянс", "теракота", "гипсокартон", "стена", "таван", "под",
		"renovation", "painting", "tiles", "drywall", "wall", "ceiling",
	},
}

// urgentLexicon marks messages as high urgency.
var urgentLexicon = []string{
	"спешно", "спешен", "бързо", "веднага", "незабавно", "днес",
	"urgent", "asap", "quickly", "immediately",
}

// emergencyLexicon marks messages as emergencies; it wins over urgentLexicon.
var emergencyLexicon = []string{
	"наводнение", "наводни", "пожар", "искри", "дим", "газ", "мирише",
	"опасно", "авария", "аварийно",
	"flood", "flooding", "fire", "smoke", "sparks", "emergency",
}

// escalationLexicon signals the customer wants a human.
var escalationLexicon = []string{
	"човек", "оператор", "оплакване", "жалба", "мениджър", "недоволен",
	"human", "operator", "complaint", "manager", "agent",
}

// addressLexicon signals the presence of a service address.
var addressLexicon = []string{
	"адрес", "ул", "улица", "бул", "булевард", "кв", "квартал", "бл", "блок",
	"вход", "етаж", "апартамент", "ап", "град", "софия", "пловдив", "варна",
	"бургас", "русе",
	"address", "street", "blvd", "apartment", "floor",
}

// timingLexicon signals the customer stated when they want the visit.
var timingLexicon = []string{
	"днес", "утре", "вдругиден", "понеделник", "вторник", "сряда", "четвъртък",
	"петък", "събота", "неделя", "сутрин", "сутринта", "обед", "следобед",
	"вечер", "вечерта", "часа", "уикенда", "седмица",
	"today", "tomorrow", "monday", "tuesday", "wednesday", "thursday", "friday",
	"saturday", "sunday", "morning", "afternoon", "evening", "weekend",
}
