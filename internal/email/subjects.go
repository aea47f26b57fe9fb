package email

const subjectActionFailedFmt = "Bezorging mislukt: %s"
